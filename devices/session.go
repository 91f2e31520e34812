/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	session.go: One port, one device and the shared navigation state
*/

package devices

import (
	"context"
	"sync"
	"time"

	"github.com/b3nn0/flightlink/comport"
	"github.com/b3nn0/flightlink/nav"
	"github.com/google/uuid"
)

// Session feeds the lines of one port through its device into the shared
// state. Parser and traffic updates happen under the state's write lock, from
// the receive goroutine or from Refresh.
type Session struct {
	ID     string // new on every Start, correlates the log lines of one connection
	Port   *comport.ComPort
	Device *Descriptor
	State  *nav.State

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func NewSession(port *comport.ComPort, dev *Descriptor, state *nav.State) *Session {
	return &Session{Port: port, Device: dev, State: state}
}

// Start opens the port and starts receiving. The session stops by itself when
// ctx is cancelled. An open failure is returned as is and nothing is retried.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.Port.Initialize(); err != nil {
		return err
	}
	if err := s.Port.StartRxThread(s.handleLine); err != nil {
		s.Port.Close()
		return err
	}
	s.running = true
	s.ID = uuid.NewString()
	s.done = make(chan struct{})

	go func(done <-chan struct{}) {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}(s.done)
	return nil
}

// Rejected sentences are counted by the parser.
func (s *Session) handleLine(line string) {
	s.State.Update(func(info *nav.NavInfo) {
		_ = s.Device.ParseLine(line, info)
	})
}

// Running reports whether the session is receiving.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Refresh is the once per cycle pass for this connection: it drops a quiet
// baro source and revokes a stale fix. It reports whether a fix arrived since
// the previous call. Aging the shared traffic table is the owner's job, it
// runs once per cycle however many sessions feed the state.
func (s *Session) Refresh(now time.Time) bool {
	var fix bool
	s.State.Update(func(info *nav.NavInfo) {
		p := s.Device.Parser
		p.CheckRMZ(info)
		p.CheckGPSValid(info)
		fix = p.EndCycle()
	})
	return fix
}

// Stop closes the port and forgets the connection state. Stopping a stopped
// session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.done)

	// The receive goroutine takes the state lock, so the port is closed first.
	s.Port.Close()
	s.State.Update(func(info *nav.NavInfo) {
		s.Device.Parser.Reset()
		info.DropBaroSource(s.Device.Source)
		info.DropFixSource(s.Device.Source)
	})
}

// Connected reports whether the device sent a valid sentence since Start.
func (s *Session) Connected() bool {
	var c bool
	s.State.Read(func(*nav.NavInfo) {
		c = s.Device.Parser.Connected()
	})
	return c
}
