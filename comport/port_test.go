package comport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) handle(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *lineRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newVirtualPort(t *testing.T) (*ComPort, *VirtualTransport) {
	t.Helper()
	v := NewVirtualTransport("virt")
	p := New(0, "", v, nil)
	require.NoError(t, p.SetRxTimeout(20*time.Millisecond))
	require.NoError(t, p.Initialize())
	t.Cleanup(func() { p.Close() })
	return p, v
}

func TestComPort_DeliversLines(t *testing.T) {
	p, v := newVirtualPort(t)
	rec := &lineRecorder{}
	require.NoError(t, p.StartRxThread(rec.handle))

	v.InjectString("$GPGGA,1,2,3*00\r\n$GP")
	v.InjectString("RMC,4,5,6*00\r\n")

	require.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"$GPGGA,1,2,3*00", "$GPRMC,4,5,6*00"}, rec.get())

	st := p.Stats().Snapshot()
	assert.Equal(t, uint64(2), st.Lines)
	assert.Equal(t, uint64(len("$GPGGA,1,2,3*00\r\n$GPRMC,4,5,6*00\r\n")), st.RxBytes)
}

func TestComPort_StopIsIdempotentAndJoins(t *testing.T) {
	p, v := newVirtualPort(t)
	rec := &lineRecorder{}
	require.NoError(t, p.StartRxThread(rec.handle))
	require.NoError(t, p.SetRxTimeout(time.Hour))

	start := time.Now()
	assert.True(t, p.StopRxThread())
	assert.Less(t, time.Since(start), time.Second, "stop must cancel the pending read")
	assert.False(t, p.StopRxThread())

	v.InjectString("$GPGGA,1,2,3*00\r\n")
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.get(), "no handler call after stop")

	// The port stays open and can be restarted.
	require.NoError(t, p.SetRxTimeout(20*time.Millisecond))
	require.NoError(t, p.StartRxThread(rec.handle))
	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestComPort_StartTwiceFails(t *testing.T) {
	p, _ := newVirtualPort(t)
	require.NoError(t, p.StartRxThread(func(string) {}))
	assert.Error(t, p.StartRxThread(func(string) {}))
}

func TestComPort_CloseIsIdempotent(t *testing.T) {
	p, _ := newVirtualPort(t)
	require.NoError(t, p.StartRxThread(func(string) {}))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, p.IsOpen())
	assert.Equal(t, PortUnused, p.Status())
	assert.False(t, p.StopRxThread())

	assert.False(t, p.WriteString("x"))
	assert.Equal(t, 0, p.Read(make([]byte, 4)))
	assert.ErrorIs(t, p.StartRxThread(func(string) {}), ErrPortUnavailable)
}

func TestComPort_InitializeFailure(t *testing.T) {
	v := NewVirtualTransport("virt")
	v.FailOpen(errors.New("no such device"))
	p := New(1, "", v, nil)

	err := p.Initialize()
	require.ErrorIs(t, err, ErrPortUnavailable)
	assert.Equal(t, PortOpenFailed, p.Status())

	v.FailOpen(nil)
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Initialize())
	assert.Equal(t, PortOpenOK, p.Status())
	p.Close()
}

func TestComPort_WriteCounts(t *testing.T) {
	p, v := newVirtualPort(t)
	require.True(t, p.WriteNMEA("PFLAC,R,ID"))
	assert.Equal(t, "$PFLAC,R,ID*", string(v.Written()[:12]))
	assert.Equal(t, uint64(len(v.Written())), p.Stats().TxBytes.Load())
	assert.Zero(t, p.Stats().TxErrors.Load())
}

func TestComPort_ReadTimesOutWithZero(t *testing.T) {
	p, v := newVirtualPort(t)
	buf := make([]byte, 8)
	assert.Equal(t, 0, p.Read(buf))

	v.InjectString("AB")
	c, ok := p.GetChar()
	require.True(t, ok)
	assert.Equal(t, byte('A'), c)
	c, ok = p.GetChar()
	require.True(t, ok)
	assert.Equal(t, byte('B'), c)
	_, ok = p.GetChar()
	assert.False(t, ok)
}

func TestComPort_OverflowCountedAndRecovered(t *testing.T) {
	p, v := newVirtualPort(t)
	rec := &lineRecorder{}
	require.NoError(t, p.StartRxThread(rec.handle))

	junk := make([]byte, 3*MaxNMEALen)
	for i := range junk {
		junk[i] = 'z'
	}
	v.Inject(junk)
	v.InjectString("\n$PGRMZ,100,F,2*00\n")

	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "$PGRMZ,100,F,2*00", rec.get()[0])
	assert.Equal(t, uint64(1), p.Stats().Overflows.Load())
}

func TestComPort_BaudAndPurge(t *testing.T) {
	p, v := newVirtualPort(t)
	require.NoError(t, p.SetBaudrate(38400))
	assert.Equal(t, 38400, p.GetBaudrate())

	v.InjectString("stale")
	require.NoError(t, p.Purge())
	require.NoError(t, p.Flush())
	assert.Equal(t, 0, p.Read(make([]byte, 8)))
	assert.True(t, p.IsReady())
}

func TestComPort_Name(t *testing.T) {
	v := NewVirtualTransport("virt")
	assert.Equal(t, "flarm", New(0, "flarm", v, nil).Name())
	assert.Equal(t, "virt", New(0, "", v, nil).Name())
}
