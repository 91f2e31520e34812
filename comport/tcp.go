package comport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/b3nn0/flightlink/common"
)

const dialTimeout = 5 * time.Second

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// tcpConn carries the read/write logic shared by the client and server links.
type tcpConn struct {
	mu        sync.Mutex
	conn      net.Conn
	rxTimeout time.Duration
}

func (t *tcpConn) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *tcpConn) timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rxTimeout
}

func (t *tcpConn) drop(c net.Conn) {
	t.mu.Lock()
	if t.conn == c {
		t.conn = nil
	}
	t.mu.Unlock()
	c.Close()
}

func (t *tcpConn) read(c net.Conn, p []byte) (int, error) {
	c.SetReadDeadline(time.Now().Add(t.timeout()))
	n, err := c.Read(p)
	if err != nil {
		if isTimeout(err) {
			return n, nil
		}
		t.drop(c)
		return n, fmt.Errorf("%w: %v", ErrLinkLost, err)
	}
	return n, nil
}

func (t *tcpConn) write(p []byte) (int, error) {
	c := t.current()
	if c == nil {
		return 0, ErrPortUnavailable
	}
	c.SetWriteDeadline(time.Now().Add(t.timeout()))
	n, err := c.Write(p)
	if err != nil && isTimeout(err) {
		return n, ErrTimeout
	}
	return n, err
}

// CancelWaitEvent expires the read deadline of the current connection.
func (t *tcpConn) CancelWaitEvent() {
	if c := t.current(); c != nil {
		c.SetReadDeadline(time.Now())
	}
}

func (t *tcpConn) SetRxTimeout(d time.Duration) error {
	t.mu.Lock()
	t.rxTimeout = d
	t.mu.Unlock()
	return nil
}

func (t *tcpConn) Flush() error { return nil }
func (t *tcpConn) Purge() error { return nil }

func (t *tcpConn) SetBaudrate(int) error { return nil }
func (t *tcpConn) Baudrate() int         { return 0 }

func (t *tcpConn) IsReady() bool {
	return t.current() != nil
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TCPClientTransport dials a NMEA feed, e.g. a SoftRF or a wifi bridge.
// A dropped connection is dialed again on the next Read, bounded by the rx
// timeout. CancelWaitEvent and Close abort a dial in progress.
type TCPClientTransport struct {
	tcpConn
	address    string
	closed     bool
	dialer     dialFunc
	cancelDial context.CancelFunc
}

func NewTCPClientTransport(address string) *TCPClientTransport {
	return &TCPClientTransport{
		tcpConn: tcpConn{rxTimeout: DefaultRxTimeout},
		address: address,
		dialer:  (&net.Dialer{}).DialContext,
	}
}

func (t *TCPClientTransport) Name() string { return "tcp:" + t.address }

func (t *TCPClientTransport) Open() error {
	t.mu.Lock()
	t.closed = false
	t.mu.Unlock()
	_, err := t.dial(dialTimeout)
	return err
}

func (t *TCPClientTransport) dial(timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrPortUnavailable
	}
	t.cancelDial = cancel
	t.mu.Unlock()

	c, err := t.dialer(ctx, "tcp", t.address)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelDial = nil
	if err != nil {
		return nil, err
	}
	if t.closed {
		c.Close()
		return nil, ErrPortUnavailable
	}
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = c
	return c, nil
}

func (t *TCPClientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.cancelDial != nil {
		t.cancelDial()
	}
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *TCPClientTransport) Read(p []byte) (int, error) {
	c := t.current()
	if c == nil {
		var err error
		if c, err = t.dial(t.redialTimeout()); err != nil {
			return 0, err
		}
	}
	return t.read(c, p)
}

func (t *TCPClientTransport) redialTimeout() time.Duration {
	if d := t.timeout(); d > 0 && d < dialTimeout {
		return d
	}
	return dialTimeout
}

func (t *TCPClientTransport) CancelWaitEvent() {
	t.mu.Lock()
	if t.cancelDial != nil {
		t.cancelDial()
	}
	t.mu.Unlock()
	t.tcpConn.CancelWaitEvent()
}

func (t *TCPClientTransport) Write(p []byte) (int, error) {
	return t.write(p)
}

// TCPServerTransport listens for one feeder at a time. A new connection
// replaces the previous one.
type TCPServerTransport struct {
	tcpConn
	port int

	ln     net.Listener
	eh     *common.ExitHelper
	wake   chan struct{}
	cancel chan struct{}
}

func NewTCPServerTransport(port int) *TCPServerTransport {
	return &TCPServerTransport{
		tcpConn: tcpConn{rxTimeout: DefaultRxTimeout},
		port:    port,
		eh:      common.NewExitHelper(),
		wake:    make(chan struct{}, 1),
		cancel:  make(chan struct{}, 1),
	}
}

func (t *TCPServerTransport) Name() string { return fmt.Sprintf("tcp-server:%d", t.port) }

// Addr is the bound address, nil while closed.
func (t *TCPServerTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

func (t *TCPServerTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return err
	}
	t.ln = ln

	c := t.eh.C()
	t.eh.Add()
	go func() {
		<-c
		ln.Close()
	}()
	go t.acceptLoop(ln)
	return nil
}

func (t *TCPServerTransport) acceptLoop(ln net.Listener) {
	defer t.eh.Done()
	for {
		conn, err := ln.Accept()
		if t.eh.IsExit() {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		t.mu.Lock()
		if t.conn != nil {
			t.conn.Close()
		}
		t.conn = conn
		t.mu.Unlock()
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}
}

func (t *TCPServerTransport) Close() error {
	t.mu.Lock()
	ln := t.ln
	t.ln = nil
	t.mu.Unlock()
	if ln == nil {
		return nil
	}
	t.eh.Exit()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	return nil
}

// Read waits up to the rx timeout for a feeder when none is connected.
func (t *TCPServerTransport) Read(p []byte) (int, error) {
	c := t.current()
	if c == nil {
		timer := time.NewTimer(t.timeout())
		defer timer.Stop()
		select {
		case <-t.wake:
		case <-t.cancel:
			return 0, nil
		case <-timer.C:
			return 0, nil
		}
		if c = t.current(); c == nil {
			return 0, nil
		}
	}
	return t.read(c, p)
}

func (t *TCPServerTransport) Write(p []byte) (int, error) {
	return t.write(p)
}

func (t *TCPServerTransport) CancelWaitEvent() {
	select {
	case t.cancel <- struct{}{}:
	default:
	}
	t.tcpConn.CancelWaitEvent()
}
