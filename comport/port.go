/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	port.go: Port with an owned receive goroutine assembling NMEA lines
*/

package comport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/b3nn0/flightlink/common"
	"go.uber.org/atomic"
)

const (
	DefaultRxTimeout = 1 * time.Second

	writeRetries = 3
	rxBufferSize = 512
)

// Transport is a byte link a ComPort can drive. Read must return (0, nil)
// when nothing arrived within the rx timeout, and CancelWaitEvent must make a
// pending Read return early.
type Transport interface {
	Name() string
	Open() error
	Close() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
	Purge() error
	CancelWaitEvent()
	SetRxTimeout(d time.Duration) error
	SetBaudrate(baud int) error
	Baudrate() int
	IsReady() bool
}

type PortStatus int32

const (
	PortUnused PortStatus = iota
	PortOpenOK
	PortOpenFailed
	PortError
)

func (s PortStatus) String() string {
	switch s {
	case PortOpenOK:
		return "ok"
	case PortOpenFailed:
		return "open failed"
	case PortError:
		return "error"
	}
	return "unused"
}

// LineHandler receives every assembled line on the receive goroutine.
type LineHandler func(line string)

// ComPort owns one transport and at most one receive goroutine.
type ComPort struct {
	index int
	name  string
	t     Transport
	sink  common.StatusSink

	stats  Stats
	status atomic.Int32
	open   atomic.Bool

	rxTimeout atomic.Duration

	// lifecycle, serialises Initialize, Start, Stop and Close
	mu      sync.Mutex
	running bool
	eh      *common.ExitHelper
}

// New wraps t as port index. name labels status messages and metrics, the
// transport's own name is used when it is empty.
func New(index int, name string, t Transport, sink common.StatusSink) *ComPort {
	if sink == nil {
		sink = common.NopSink{}
	}
	if name == "" {
		name = t.Name()
	}
	p := &ComPort{
		index: index,
		name:  name,
		t:     t,
		sink:  sink,
		eh:    common.NewExitHelper(),
	}
	p.rxTimeout.Store(DefaultRxTimeout)
	return p
}

func (p *ComPort) Index() int         { return p.index }
func (p *ComPort) Name() string       { return p.name }
func (p *ComPort) Stats() *Stats      { return &p.stats }
func (p *ComPort) Status() PortStatus { return PortStatus(p.status.Load()) }
func (p *ComPort) IsOpen() bool       { return p.open.Load() }

func (p *ComPort) setStatus(s PortStatus) {
	p.status.Store(int32(s))
}

// Initialize opens the transport. It is a no-op on an open port.
func (p *ComPort) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open.Load() {
		return nil
	}
	if err := p.t.Open(); err != nil {
		p.setStatus(PortOpenFailed)
		p.sink.StatusMessage(common.MSG_ERROR, p.name, "open failed: %s", err.Error())
		return fmt.Errorf("%s: %w: %v", p.name, ErrPortUnavailable, err)
	}
	if err := p.t.SetRxTimeout(p.rxTimeout.Load()); err != nil {
		p.sink.StatusMessage(common.MSG_WARNING, p.name, "set rx timeout: %s", err.Error())
	}
	p.open.Store(true)
	p.setStatus(PortOpenOK)
	p.sink.StatusMessage(common.MSG_INFO, p.name, "port open")
	return nil
}

// StartRxThread starts the receive goroutine. Lines are delivered to handler
// until StopRxThread or Close.
func (p *ComPort) StartRxThread(handler LineHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open.Load() {
		return fmt.Errorf("%s: %w", p.name, ErrPortUnavailable)
	}
	if p.running {
		return fmt.Errorf("%s: receive thread already running", p.name)
	}
	p.running = true

	c := p.eh.C()
	p.eh.Add()
	go func() {
		defer p.eh.Done()
		<-c
		p.t.CancelWaitEvent()
	}()
	p.eh.Add()
	go p.rxThread(c, handler)
	return nil
}

// StopRxThread stops and joins the receive goroutine. No handler call is in
// progress once it returns. It reports whether a goroutine was running.
func (p *ComPort) StopRxThread() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopRxLocked()
}

func (p *ComPort) stopRxLocked() bool {
	if !p.running {
		return false
	}
	p.eh.Exit()
	p.running = false
	return true
}

func (p *ComPort) rxThread(c <-chan struct{}, handler LineHandler) {
	defer p.eh.Done()

	asm := NewLineAssembler(MaxNMEALen)
	buf := make([]byte, rxBufferSize)
	emit := func(line string) {
		p.stats.Lines.Inc()
		handler(line)
	}

	for !p.eh.IsExit() {
		n, err := p.t.Read(buf)
		if err != nil && !errors.Is(err, ErrTimeout) {
			p.stats.RxErrors.Inc()
			p.setStatus(PortError)
			select {
			case <-c:
				return
			case <-time.After(p.rxTimeout.Load()):
			}
			continue
		}
		if n == 0 {
			continue
		}
		p.stats.RxBytes.Add(uint64(n))
		if p.Status() == PortError {
			p.setStatus(PortOpenOK)
		}
		for _, b := range buf[:n] {
			if !asm.ProcessChar(b, emit) {
				p.stats.Overflows.Inc()
			}
		}
	}
}

// Close stops the receive goroutine and closes the transport. Closing a
// closed port is a no-op.
func (p *ComPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopRxLocked()
	if !p.open.Load() {
		return nil
	}
	p.open.Store(false)
	p.setStatus(PortUnused)
	err := p.t.Close()
	p.sink.StatusMessage(common.MSG_INFO, p.name, "port closed, %s", p.stats.Snapshot())
	return err
}

// Write sends data, retrying a short or failed write a few times. It reports
// whether every byte went out.
func (p *ComPort) Write(data []byte) bool {
	if !p.open.Load() {
		p.stats.TxErrors.Inc()
		return false
	}
	for attempt := 0; attempt < writeRetries && len(data) > 0; attempt++ {
		n, err := p.t.Write(data)
		if n > 0 {
			p.stats.TxBytes.Add(uint64(n))
			data = data[n:]
		}
		if err != nil && !errors.Is(err, ErrTimeout) {
			break
		}
	}
	if len(data) > 0 {
		p.stats.TxErrors.Inc()
		return false
	}
	return true
}

func (p *ComPort) WriteString(s string) bool {
	return p.Write([]byte(s))
}

// WriteNMEA frames cmd with '$', checksum and CRLF before writing it.
func (p *ComPort) WriteNMEA(cmd string) bool {
	return p.Write(common.MakeNMEACmd(cmd))
}

// Read is a bounded read for callers driving the port without the receive
// goroutine. It returns 0 on timeout or error.
func (p *ComPort) Read(buf []byte) int {
	if !p.open.Load() {
		return 0
	}
	n, err := p.t.Read(buf)
	if err != nil && !errors.Is(err, ErrTimeout) {
		p.stats.RxErrors.Inc()
		return 0
	}
	p.stats.RxBytes.Add(uint64(n))
	return n
}

// GetChar reads a single byte, ok is false on timeout.
func (p *ComPort) GetChar() (byte, bool) {
	var b [1]byte
	if p.Read(b[:]) != 1 {
		return 0, false
	}
	return b[0], true
}

func (p *ComPort) Flush() error {
	if !p.open.Load() {
		return ErrPortUnavailable
	}
	return p.t.Flush()
}

func (p *ComPort) Purge() error {
	if !p.open.Load() {
		return ErrPortUnavailable
	}
	return p.t.Purge()
}

func (p *ComPort) CancelWaitEvent() {
	p.t.CancelWaitEvent()
}

func (p *ComPort) SetRxTimeout(d time.Duration) error {
	p.rxTimeout.Store(d)
	if !p.open.Load() {
		return nil
	}
	return p.t.SetRxTimeout(d)
}

func (p *ComPort) SetBaudrate(baud int) error {
	return p.t.SetBaudrate(baud)
}

func (p *ComPort) GetBaudrate() int {
	return p.t.Baudrate()
}

func (p *ComPort) IsReady() bool {
	return p.open.Load() && p.t.IsReady()
}

// UpdateStatus publishes the counters to the status sink.
func (p *ComPort) UpdateStatus() {
	t := common.MSG_INFO
	if p.Status() != PortOpenOK {
		t = common.MSG_WARNING
	}
	p.sink.StatusMessage(t, p.name, "%s: %s", p.Status(), p.stats.Snapshot())
}
