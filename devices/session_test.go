package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/comport"
	"github.com/b3nn0/flightlink/nav"
	"github.com/b3nn0/flightlink/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, driver string) (*Session, *comport.VirtualTransport, *common.ManualClock) {
	t.Helper()
	clock := common.NewManualClock(time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC))
	opts := parser.Options{VerifyChecksum: true, Clock: clock}

	v := comport.NewVirtualTransport("virt")
	require.NoError(t, v.SetRxTimeout(20*time.Millisecond))
	port := comport.New(0, "", v, nil)
	require.NoError(t, port.SetRxTimeout(20*time.Millisecond))

	d := NewDescriptor(port.Name(), parser.New(opts), opts)
	require.NoError(t, Install(driver, d))

	s := NewSession(port, d, nav.NewState(10))
	t.Cleanup(s.Stop)
	return s, v, clock
}

func TestSession_EndToEnd(t *testing.T) {
	s, v, clock := newTestSession(t, DefaultDriver)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.Len(t, s.ID, 36)

	v.InjectString("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n")
	v.InjectString(common.AppendNmeaChecksum("$PFLAA,0,1000,-500,100,2,DDA85C,123,4.5,30,1.4,1") + "\r\n")
	v.InjectString(common.AppendNmeaChecksum("$PGRMZ,1000,f,3") + "\r\n")

	require.Eventually(t, func() bool {
		snap := s.State.Snapshot()
		return snap.Traffic.Count() == 1 && snap.BaroAltitudeAvailable
	}, time.Second, 5*time.Millisecond)

	info := s.State.Snapshot()
	assert.InDelta(t, 48.1173, info.Latitude, 1e-4)
	assert.False(t, info.NAVWarning)
	assert.True(t, info.FlarmAvailable)
	assert.Equal(t, "virt", info.BaroSourceName)

	assert.True(t, s.Refresh(clock.Now()))
	assert.False(t, s.Refresh(clock.Now()))

	clock.Advance(31 * time.Second)
	s.Refresh(clock.Now())
	info = s.State.Snapshot()
	assert.Equal(t, 1, info.Traffic.Count(), "traffic is aged by the owner of the state")
	assert.True(t, info.NAVWarning)
	assert.False(t, info.BaroAltitudeAvailable)

	s.State.Update(func(info *nav.NavInfo) { info.Traffic.RefreshAll(clock.Now()) })
	info = s.State.Snapshot()
	assert.Zero(t, info.Traffic.Count())
}

func TestSession_PosiGraphOverPort(t *testing.T) {
	s, v, _ := newTestSession(t, PosiGraphDriver)
	require.NoError(t, s.Start(context.Background()))

	v.InjectString("$GPWIN ,01900 , 0 , 5159 , 0 , 0 , 0 , 0 , 0 , 0 , 0 * 77\r\n")
	require.Eventually(t, func() bool {
		return s.State.Snapshot().BaroAltitudeAvailable
	}, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 516, s.State.Snapshot().BaroAltitude, 1e-9)
}

func TestSession_StopIsIdempotent(t *testing.T) {
	s, v, _ := newTestSession(t, DefaultDriver)
	require.NoError(t, s.Start(context.Background()))

	v.InjectString("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n")
	require.Eventually(t, s.Connected, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	assert.False(t, s.Port.IsOpen())
	assert.False(t, s.Connected())
	assert.True(t, s.State.Snapshot().NAVWarning)
	assert.Equal(t, comport.PortUnused, s.Port.Status())
}

func TestSession_StopsOnContextCancel(t *testing.T) {
	s, _, _ := newTestSession(t, DefaultDriver)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Port.IsOpen())
}

func TestSession_StartFailure(t *testing.T) {
	s, v, _ := newTestSession(t, DefaultDriver)
	v.FailOpen(errors.New("no such device"))

	err := s.Start(context.Background())
	require.ErrorIs(t, err, comport.ErrPortUnavailable)
	assert.False(t, s.Running())
	assert.Equal(t, comport.PortOpenFailed, s.Port.Status())
}

func TestSession_SharedStateKeepsOtherPortsFix(t *testing.T) {
	clock := common.NewManualClock(time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC))
	opts := parser.Options{VerifyChecksum: true, Clock: clock}
	state := nav.NewState(10)

	open := func(name, driver string) (*Session, *comport.VirtualTransport) {
		v := comport.NewVirtualTransport(name)
		port := comport.New(0, "", v, nil)
		require.NoError(t, port.SetRxTimeout(20*time.Millisecond))
		d := NewDescriptor(name, parser.New(opts), opts)
		require.NoError(t, Install(driver, d))
		s := NewSession(port, d, state)
		t.Cleanup(s.Stop)
		require.NoError(t, s.Start(context.Background()))
		return s, v
	}
	gps, gv := open("gps", DefaultDriver)
	logger, _ := open("logger", PosiGraphDriver)

	gv.InjectString("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n")
	require.Eventually(t, func() bool { return !state.Snapshot().NAVWarning }, time.Second, 5*time.Millisecond)

	logger.Refresh(clock.Now())
	gps.Refresh(clock.Now())
	assert.False(t, state.Snapshot().NAVWarning)

	clock.Advance(5 * time.Second)
	logger.Refresh(clock.Now())
	assert.False(t, state.Snapshot().NAVWarning)

	clock.Advance(2 * time.Second)
	logger.Refresh(clock.Now())
	assert.False(t, state.Snapshot().NAVWarning)
	gps.Refresh(clock.Now())
	assert.True(t, state.Snapshot().NAVWarning)
}

func TestSession_StopRevokesOwnFixOnly(t *testing.T) {
	s, v, _ := newTestSession(t, DefaultDriver)
	require.NoError(t, s.Start(context.Background()))

	v.InjectString("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n")
	require.Eventually(t, func() bool { return !s.State.Snapshot().NAVWarning }, time.Second, 5*time.Millisecond)

	s.State.Update(func(info *nav.NavInfo) { info.FixSource = "other" })
	s.Stop()
	assert.False(t, s.State.Snapshot().NAVWarning)
}
