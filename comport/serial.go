/*
	Copyright (c) 2015-2016 Christopher Young,
	Copyright (c) 2022 Refactored R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	serial.go: tty transport with optional baud rate detection
*/

package comport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/b3nn0/flightlink/common"
	"github.com/tarm/serial"
	"go.uber.org/ratelimit"
)

// Baud rates tried by detection when none are configured
var DefaultAutoBaud = []int{115200, 9600, 38400, 19200, 57600, 4800}

// How long detection listens on one rate for a valid sentence
const detectTimeout = 2500 * time.Millisecond

// SerialTransport drives a tty through github.com/tarm/serial.
type SerialTransport struct {
	device   string
	autoBaud []int

	mu        sync.Mutex
	baud      int
	rxTimeout time.Duration
	port      *serial.Port
}

// NewSerialTransport opens device at baud. With a non empty autoBaud list the
// rate is detected on Open instead.
func NewSerialTransport(device string, baud int, autoBaud []int) *SerialTransport {
	return &SerialTransport{
		device:    device,
		baud:      baud,
		autoBaud:  autoBaud,
		rxTimeout: DefaultRxTimeout,
	}
}

func (s *SerialTransport) Name() string { return s.device }

func (s *SerialTransport) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return nil
	}
	if _, err := os.Stat(s.device); err != nil {
		return err
	}
	if len(s.autoBaud) > 0 {
		p, baud, err := detectAndOpenSerialPort(s.device, s.autoBaud)
		if err != nil {
			return err
		}
		p.Close()
		s.baud = baud
	}
	return s.openLocked()
}

func (s *SerialTransport) openLocked() error {
	p, err := serial.OpenPort(&serial.Config{Name: s.device, Baud: s.baud, ReadTimeout: s.rxTimeout})
	if err != nil {
		return err
	}
	s.port = p
	return nil
}

// detectAndOpenSerialPort tries every rate in turn and keeps the first one on
// which a checksum valid NMEA sentence is read.
func detectAndOpenSerialPort(device string, bauds []int) (*serial.Port, int, error) {
	rl := ratelimit.New(1, ratelimit.Per(2*time.Second))
	for _, baud := range bauds {
		rl.Take()

		p, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud, ReadTimeout: detectTimeout})
		if err != nil {
			continue
		}
		// If it works, try to read NMEA data from it if we find NMEA we are connected
		buffer := make([]byte, 4096)
		n, err := p.Read(buffer)
		if n != 0 && err == nil {
			for _, line := range strings.Split(string(buffer[:n]), "\n") {
				if _, ok := common.ValidateNMEAChecksum(line); ok {
					return p, baud, nil
				}
			}
		}
		p.Close()
	}
	return nil, 0, fmt.Errorf("%s: no NMEA detected at %v", device, bauds)
}

func (s *SerialTransport) current() *serial.Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *SerialTransport) Read(b []byte) (int, error) {
	p := s.current()
	if p == nil {
		return 0, ErrPortUnavailable
	}
	n, err := p.Read(b)
	// tarm reports an expired read timeout as a zero length EOF
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (s *SerialTransport) Write(b []byte) (int, error) {
	p := s.current()
	if p == nil {
		return 0, ErrPortUnavailable
	}
	return p.Write(b)
}

func (s *SerialTransport) Flush() error {
	p := s.current()
	if p == nil {
		return ErrPortUnavailable
	}
	return p.Flush()
}

// Purge discards pending input. tarm only offers a flush of both directions.
func (s *SerialTransport) Purge() error {
	return s.Flush()
}

// CancelWaitEvent is a no-op, a pending read ends with the read timeout.
func (s *SerialTransport) CancelWaitEvent() {}

// SetRxTimeout reopens the tty, tarm fixes the timeout at open time.
func (s *SerialTransport) SetRxTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rxTimeout == d {
		return nil
	}
	s.rxTimeout = d
	return s.reopenLocked()
}

func (s *SerialTransport) SetBaudrate(baud int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baud == baud {
		return nil
	}
	s.baud = baud
	return s.reopenLocked()
}

func (s *SerialTransport) reopenLocked() error {
	if s.port == nil {
		return nil
	}
	s.port.Close()
	s.port = nil
	return s.openLocked()
}

func (s *SerialTransport) Baudrate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baud
}

func (s *SerialTransport) IsReady() bool {
	return s.current() != nil
}
