/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	manager.go: Builds a session per configured port and drives the update cycle
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/comport"
	"github.com/b3nn0/flightlink/config"
	"github.com/b3nn0/flightlink/devices"
	"github.com/b3nn0/flightlink/logger"
	"github.com/b3nn0/flightlink/metrics"
	"github.com/b3nn0/flightlink/nav"
	"github.com/b3nn0/flightlink/parser"
	"github.com/rs/zerolog"
)

type link struct {
	cfg       config.Port
	transport comport.Transport
	session   *devices.Session
}

// Manager owns every session and the navigation state they share.
type Manager struct {
	cfg   config.Config
	log   zerolog.Logger
	clock common.Clock

	state     *nav.State
	collector *metrics.Collector
	links     []*link

	eh *common.ExitHelper
}

func NewManager(cfg config.Config, clock common.Clock) (*Manager, error) {
	if clock == nil {
		clock = common.SystemClock{}
	}
	m := &Manager{
		cfg:   cfg,
		log:   logger.Component("manager"),
		clock: clock,
		state: nav.NewState(cfg.Traffic.Capacity),
		eh:    common.NewExitHelper(),
	}
	m.state.Update(func(info *nav.NavInfo) {
		info.Traffic.GhostAfter = cfg.Traffic.Ghost
		info.Traffic.StaleAfter = cfg.Traffic.Stale
	})
	m.collector = metrics.NewCollector(m.state)

	sink := logger.Sink("port")
	for i, pc := range cfg.Ports {
		t, err := comport.NewTransport(pc)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", pc.Name, err)
		}
		port := comport.New(i, pc.Name, t, sink)
		if pc.RxTimeout > 0 {
			if err := port.SetRxTimeout(pc.RxTimeout); err != nil {
				return nil, fmt.Errorf("port %s: %w", pc.Name, err)
			}
		}

		opts := parser.Options{
			VerifyChecksum: cfg.NMEA.VerifyChecksum(),
			Clock:          clock,
			Sink:           sink,
		}
		dev := devices.NewDescriptor(pc.Name, parser.New(opts), opts)
		if err := devices.Install(pc.Driver, dev); err != nil {
			return nil, fmt.Errorf("port %s: %w", pc.Name, err)
		}

		m.collector.Add(port, dev.Parser)
		m.links = append(m.links, &link{
			cfg:       pc,
			transport: t,
			session:   devices.NewSession(port, dev, m.state),
		})
	}
	return m, nil
}

func (m *Manager) State() *nav.State {
	return m.state
}

func (m *Manager) Collector() *metrics.Collector {
	return m.collector
}

// Start starts every session. A port that fails to open is logged and retried
// on each status tick. Start fails only when no port opened at all.
func (m *Manager) Start(ctx context.Context) error {
	var started int
	var lastErr error
	for _, l := range m.links {
		if err := l.session.Start(ctx); err != nil {
			m.log.Warn().Err(err).Str("port", l.cfg.Name).Msg("start failed, will retry")
			lastErr = err
			continue
		}
		m.log.Info().Str("port", l.cfg.Name).Str("session", l.session.ID).Str("device", l.session.Device.Name).Msg("session started")
		started++
	}
	if started == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// Run drives the refresh and status cycles until ctx is cancelled or Stop is
// called. It stops every session before returning.
func (m *Manager) Run(ctx context.Context) {
	m.eh.Add()
	defer m.eh.Done()
	defer m.stopSessions()

	c := m.eh.C()
	refresh := time.NewTicker(m.cfg.RefreshInterval)
	defer refresh.Stop()
	status := time.NewTicker(m.cfg.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c:
			return
		case <-refresh.C:
			m.refresh()
		case <-status.C:
			m.status(ctx)
		}
	}
}

// refresh ages the shared traffic table once, then runs every running
// session's per-connection checks.
func (m *Manager) refresh() {
	now := m.clock.Now()
	m.state.Update(func(info *nav.NavInfo) {
		info.Traffic.RefreshAll(now)
	})
	for _, l := range m.links {
		if l.session.Running() {
			l.session.Refresh(now)
		}
	}
}

func (m *Manager) status(ctx context.Context) {
	for _, l := range m.links {
		if !l.session.Running() {
			if err := l.session.Start(ctx); err != nil {
				if !errors.Is(err, comport.ErrPortUnavailable) {
					m.log.Error().Err(err).Str("port", l.cfg.Name).Msg("restart failed")
				}
				continue
			}
			m.log.Info().Str("port", l.cfg.Name).Str("session", l.session.ID).Msg("session restarted")
		}
		l.session.Port.UpdateStatus()
	}

	info := m.state.Snapshot()
	ev := m.log.Info().
		Bool("fix", !info.NAVWarning).
		Str("fix_source", info.FixSource).
		Int("satellites", info.SatellitesUsed).
		Int("traffic", info.Traffic.Count()).
		Int("alarm", info.Traffic.MaxAlarm)
	if info.BaroAltitudeAvailable {
		ev = ev.Float64("baro_alt", info.BaroAltitude).
			Str("baro_source", info.BaroSourceName).
			Str("baro_type", common.BaroTypeName(info.BaroSourceType))
	}
	ev.Msg("status")
}

// Stop makes Run return and waits for it.
func (m *Manager) Stop() {
	m.eh.Exit()
}

func (m *Manager) stopSessions() {
	for _, l := range m.links {
		l.session.Stop()
	}
}
