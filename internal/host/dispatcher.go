// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package host

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// Dispatcher marshals work onto the host's designated document thread.
// The host only permits document mutation from that thread, so everything
// the execution bridge runs goes through Invoke.
type Dispatcher interface {
	// Invoke runs fn on the document thread and blocks until it returns.
	// Returns fn's error, or an error if the dispatcher is closed or the
	// context is done before fn is scheduled.
	Invoke(ctx context.Context, fn func() error) error

	Close() error
}

// job pairs a unit of work with its completion channel.
type job struct {
	fn   func() error
	done chan error
}

// SerialDispatcher runs submitted work on a single goroutine, one job at a
// time, modeling the host's thread-affinity requirement.
type SerialDispatcher struct {
	jobs    chan job
	quit    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewSerialDispatcher starts the dispatch loop.
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{
		jobs: make(chan job),
		quit: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *SerialDispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		case j := <-d.jobs:
			j.done <- j.fn()
		}
	}
}

// Invoke runs fn on the dispatch goroutine and blocks until completion.
// Once fn has been scheduled it runs to completion even if ctx expires;
// there is no cancellation contract for dispatched work.
func (d *SerialDispatcher) Invoke(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}

	select {
	case d.jobs <- j:
	case <-d.quit:
		return oops.In("dispatcher").New("dispatcher is closed")
	case <-ctx.Done():
		return oops.In("dispatcher").Wrap(ctx.Err())
	}

	return <-j.done
}

// Close stops the dispatch loop. Jobs not yet scheduled are rejected;
// a job already running completes first.
func (d *SerialDispatcher) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.quit)
	d.wg.Wait()
	return nil
}
