/*
	Copyright (c) 2022 R. van Twisk
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.
	exithelper.go: Stop flag plus join for goroutines owned by a port or session
*/

package common

import (
	"sync"

	"github.com/tevino/abool/v2"
)

// ExitHelper lets an owner signal its goroutines to stop and wait for them.
// After Exit returns the helper is re-armed and can be used again.
type ExitHelper struct {
	c chan struct{}
	w *sync.WaitGroup
	m sync.Mutex
	b *abool.AtomicBool
}

func NewExitHelper() *ExitHelper {
	return &ExitHelper{
		c: make(chan struct{}),
		w: new(sync.WaitGroup),
		b: abool.New(),
	}
}

// Add registers one goroutine. Call it before starting the goroutine.
func (a *ExitHelper) Add() {
	a.m.Lock()
	a.w.Add(1)
	a.m.Unlock()
}

func (a *ExitHelper) Done() {
	a.w.Done()
}

// C returns the channel closed by the next Exit. Capture it when the
// goroutine starts, the helper swaps in a fresh channel after every Exit.
func (a *ExitHelper) C() <-chan struct{} {
	a.m.Lock()
	defer a.m.Unlock()
	return a.c
}

func (a *ExitHelper) IsExit() bool {
	return a.b.IsSet()
}

// Exit sets the stop flag, closes the channel and waits for every
// registered goroutine to call Done.
func (a *ExitHelper) Exit() {
	a.m.Lock()
	a.b.Set()
	close(a.c)
	w := a.w
	a.m.Unlock()

	w.Wait()

	a.m.Lock()
	a.c = make(chan struct{})
	a.w = new(sync.WaitGroup)
	a.b.UnSet()
	a.m.Unlock()
}
