/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	watchdog.go: Link silence detection for ports that have no read timeout of their own
*/

package common

import (
	"time"

	"go.uber.org/atomic"
)

// Watchdog fires C once when it is not poked for the configured duration.
// It is armed by the first Poke.
type Watchdog struct {
	t         *time.Timer
	d         time.Duration
	armed     atomic.Bool
	triggered atomic.Bool
	C         chan struct{}
}

func NewWatchdog(d time.Duration) *Watchdog {
	wd := &Watchdog{
		d: d,
		C: make(chan struct{}, 1),
	}
	wd.t = time.AfterFunc(d, wd.fire)
	return wd
}

func (w *Watchdog) fire() {
	if !w.armed.Load() {
		return
	}
	w.triggered.Store(true)
	select {
	case w.C <- struct{}{}:
	default:
	}
}

func (w *Watchdog) IsTriggered() bool {
	return w.triggered.Load()
}

// Poke restarts the countdown.
func (w *Watchdog) Poke() {
	w.armed.Store(false)
	w.t.Stop()
	w.t.Reset(w.d)
	w.armed.Store(true)
}

// Stop disarms the watchdog without firing.
func (w *Watchdog) Stop() {
	w.armed.Store(false)
	w.t.Stop()
}

// Trigger fires the watchdog immediately.
func (w *Watchdog) Trigger() {
	w.t.Stop()
	w.armed.Store(true)
	w.fire()
}
