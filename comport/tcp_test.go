package comport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/b3nn0/flightlink/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPClientTransport_ReadsFeed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.Write([]byte("$PFLAU,1,1,2,1,0,,0,,*00\r\n"))
		time.Sleep(200 * time.Millisecond)
	}()

	tr := NewTCPClientTransport(ln.Addr().String())
	p := New(0, "", tr, nil)
	require.NoError(t, p.SetRxTimeout(50*time.Millisecond))
	require.NoError(t, p.Initialize())
	defer p.Close()

	rec := &lineRecorder{}
	require.NoError(t, p.StartRxThread(rec.handle))
	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "$PFLAU,1,1,2,1,0,,0,,*00", rec.get()[0])
}

func TestTCPClientTransport_OpenFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	p := New(0, "", NewTCPClientTransport(addr), nil)
	assert.ErrorIs(t, p.Initialize(), ErrPortUnavailable)
}

func TestTCPClientTransport_CloseAbortsRedial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	tr := NewTCPClientTransport(ln.Addr().String())
	redialing := make(chan struct{})
	var dials int
	tr.dialer = func(ctx context.Context, network, address string) (net.Conn, error) {
		dials++
		if dials == 1 {
			return (&net.Dialer{}).DialContext(ctx, network, address)
		}
		close(redialing)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p := New(0, "", tr, nil)
	require.NoError(t, p.SetRxTimeout(3*time.Second))
	require.NoError(t, p.Initialize())
	require.NoError(t, p.StartRxThread(func(string) {}))

	select {
	case <-redialing:
	case <-time.After(5 * time.Second):
		t.Fatal("link drop did not trigger a redial")
	}

	start := time.Now()
	require.NoError(t, p.Close())
	assert.Less(t, time.Since(start), time.Second)
}

func TestTCPServerTransport_AcceptsFeeder(t *testing.T) {
	tr := NewTCPServerTransport(0)
	p := New(0, "", tr, nil)
	require.NoError(t, p.SetRxTimeout(50*time.Millisecond))
	require.NoError(t, p.Initialize())

	rec := &lineRecorder{}
	require.NoError(t, p.StartRxThread(rec.handle))

	addr := tr.Addr()
	require.NotNil(t, addr)
	c, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("$GPRMC,123519,A*00\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Close())
	assert.Less(t, time.Since(start), time.Second)
	assert.Nil(t, tr.Addr())
}

func TestNewTransport(t *testing.T) {
	cases := []struct {
		cfg  config.Port
		want any
	}{
		{config.Port{Type: "serial", Device: "/dev/ttyUSB0", Baud: 9600}, &SerialTransport{}},
		{config.Port{Type: "serial-bugst", Device: "/dev/ttyUSB0", Baud: 9600}, &BugstSerialTransport{}},
		{config.Port{Type: "tcp", Address: "127.0.0.1:1"}, &TCPClientTransport{}},
		{config.Port{Type: "tcp-server", ListenPort: 30011}, &TCPServerTransport{}},
		{config.Port{Type: "ble", MAC: "AA:BB:CC:DD:EE:FF"}, &BLETransport{}},
		{config.Port{Type: "virtual", Name: "sim", RxTimeout: time.Second}, &VirtualTransport{}},
	}
	for _, tc := range cases {
		tr, err := NewTransport(tc.cfg)
		require.NoError(t, err, tc.cfg.Type)
		assert.IsType(t, tc.want, tr, tc.cfg.Type)
	}

	_, err := NewTransport(config.Port{Type: "can"})
	assert.Error(t, err)
}
