package comport

import (
	"sync"
	"time"

	"go.bug.st/serial"
)

// BugstSerialTransport drives a tty through go.bug.st/serial, which can change
// rate and timeout on an open port and purge each direction on its own.
type BugstSerialTransport struct {
	device string

	mu        sync.Mutex
	baud      int
	rxTimeout time.Duration
	port      serial.Port
}

func NewBugstSerialTransport(device string, baud int) *BugstSerialTransport {
	return &BugstSerialTransport{
		device:    device,
		baud:      baud,
		rxTimeout: DefaultRxTimeout,
	}
}

// ListSerialPorts returns the serial ports known to the OS.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (s *BugstSerialTransport) Name() string { return s.device }

func (s *BugstSerialTransport) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}
	p, err := serial.Open(s.device, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return err
	}
	if err := p.SetReadTimeout(s.rxTimeout); err != nil {
		p.Close()
		return err
	}
	s.port = p
	return nil
}

func (s *BugstSerialTransport) current() serial.Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *BugstSerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *BugstSerialTransport) Read(b []byte) (int, error) {
	p := s.current()
	if p == nil {
		return 0, ErrPortUnavailable
	}
	return p.Read(b)
}

func (s *BugstSerialTransport) Write(b []byte) (int, error) {
	p := s.current()
	if p == nil {
		return 0, ErrPortUnavailable
	}
	return p.Write(b)
}

// Flush drops output not yet transmitted.
func (s *BugstSerialTransport) Flush() error {
	p := s.current()
	if p == nil {
		return ErrPortUnavailable
	}
	return p.ResetOutputBuffer()
}

// Purge drops input not yet read.
func (s *BugstSerialTransport) Purge() error {
	p := s.current()
	if p == nil {
		return ErrPortUnavailable
	}
	return p.ResetInputBuffer()
}

// CancelWaitEvent is a no-op, a pending read ends with the read timeout.
func (s *BugstSerialTransport) CancelWaitEvent() {}

func (s *BugstSerialTransport) SetRxTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxTimeout = d
	if s.port == nil {
		return nil
	}
	return s.port.SetReadTimeout(d)
}

func (s *BugstSerialTransport) SetBaudrate(baud int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baud = baud
	if s.port == nil {
		return nil
	}
	return s.port.SetMode(&serial.Mode{BaudRate: baud})
}

func (s *BugstSerialTransport) Baudrate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baud
}

func (s *BugstSerialTransport) IsReady() bool {
	return s.current() != nil
}
