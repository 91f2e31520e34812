package comport

import (
	"bytes"
	"fmt"
	"sync"
	"time"
)

// VirtualTransport is an in-memory link. Bytes passed to Inject are returned
// by Read, bytes written are kept for Written. It is used for replay and tests.
type VirtualTransport struct {
	name string

	in      chan []byte
	cancel  chan struct{}
	pending []byte // rest of a chunk larger than the last Read buffer, touched only by Read

	mu        sync.Mutex
	open      bool
	baud      int
	rxTimeout time.Duration
	out       bytes.Buffer
	openErr   error
}

func NewVirtualTransport(name string) *VirtualTransport {
	return &VirtualTransport{
		name:      name,
		in:        make(chan []byte, 256),
		cancel:    make(chan struct{}, 1),
		baud:      9600,
		rxTimeout: DefaultRxTimeout,
	}
}

func (v *VirtualTransport) Name() string { return v.name }

// FailOpen makes the next Open calls fail with err, nil clears it.
func (v *VirtualTransport) FailOpen(err error) {
	v.mu.Lock()
	v.openErr = err
	v.mu.Unlock()
}

func (v *VirtualTransport) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.openErr != nil {
		return v.openErr
	}
	v.open = true
	return nil
}

func (v *VirtualTransport) Close() error {
	v.mu.Lock()
	v.open = false
	v.mu.Unlock()
	v.CancelWaitEvent()
	return nil
}

func (v *VirtualTransport) isOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

// Inject queues data for Read. It blocks when the queue is full.
func (v *VirtualTransport) Inject(data []byte) {
	v.in <- append([]byte(nil), data...)
}

func (v *VirtualTransport) InjectString(s string) {
	v.Inject([]byte(s))
}

func (v *VirtualTransport) Read(p []byte) (int, error) {
	if !v.isOpen() {
		return 0, fmt.Errorf("%s: %w", v.name, ErrPortUnavailable)
	}
	if len(v.pending) == 0 {
		v.mu.Lock()
		timeout := v.rxTimeout
		v.mu.Unlock()

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case chunk := <-v.in:
			v.pending = chunk
		case <-v.cancel:
			return 0, nil
		case <-timer.C:
			return 0, nil
		}
	}
	n := copy(p, v.pending)
	v.pending = v.pending[n:]
	return n, nil
}

func (v *VirtualTransport) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.open {
		return 0, fmt.Errorf("%s: %w", v.name, ErrPortUnavailable)
	}
	return v.out.Write(p)
}

// Written returns a copy of everything written so far.
func (v *VirtualTransport) Written() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.out.Bytes()...)
}

func (v *VirtualTransport) Flush() error { return nil }

// Purge drops queued input.
func (v *VirtualTransport) Purge() error {
	for {
		select {
		case <-v.in:
		default:
			return nil
		}
	}
}

func (v *VirtualTransport) CancelWaitEvent() {
	select {
	case v.cancel <- struct{}{}:
	default:
	}
}

func (v *VirtualTransport) SetRxTimeout(d time.Duration) error {
	v.mu.Lock()
	v.rxTimeout = d
	v.mu.Unlock()
	return nil
}

func (v *VirtualTransport) SetBaudrate(baud int) error {
	v.mu.Lock()
	v.baud = baud
	v.mu.Unlock()
	return nil
}

func (v *VirtualTransport) Baudrate() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.baud
}

func (v *VirtualTransport) IsReady() bool {
	return v.isOpen()
}
