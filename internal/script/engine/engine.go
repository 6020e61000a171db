// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package engine orchestrates script providers and execution dispatch: it
// owns the active provider and the last-known snapshot, and is the single
// entry point callers use to look up, execute, and refresh scripts.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/modelscript/modelscript/internal/host"
	"github.com/modelscript/modelscript/internal/script"
	"github.com/modelscript/modelscript/internal/script/bridge"
)

// Executor runs one script transactionally against a host document.
// Satisfied by *bridge.Bridge.
type Executor interface {
	Execute(ctx context.Context, rec script.Record, doc host.Document) bridge.Result
}

// ProviderFactory builds the provider for a mode. The engine closes the
// previous provider before asking the factory for the next one.
type ProviderFactory func(mode script.Mode) (script.Provider, error)

// Engine owns the current provider and snapshot.
//
// One mutex guards snapshot access, execution lookup, and mode switching, so
// a switch can never race a lookup against a torn-down provider. Executions
// already dispatched before a switch complete under their resolved record.
type Engine struct {
	factory  ProviderFactory
	executor Executor
	logger   *slog.Logger
	metrics  *Metrics

	mu       sync.Mutex
	mode     script.Mode
	provider script.Provider
	forward  *atomic.Bool
	snapshot script.Snapshot
	subs     []script.ChangeFunc
}

// Option configures the engine.
type Option func(*Engine)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine. factory and executor are required; the engine is
// unusable until Initialize succeeds.
func New(factory ProviderFactory, executor Executor, opts ...Option) (*Engine, error) {
	if factory == nil {
		return nil, oops.In("engine").New("provider factory is required")
	}
	if executor == nil {
		return nil, oops.In("engine").New("executor is required")
	}
	e := &Engine{
		factory:  factory,
		executor: executor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Subscribe registers a callback invoked after every snapshot replacement.
func (e *Engine) Subscribe(fn script.ChangeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Mode returns the active provider mode.
func (e *Engine) Mode() script.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Initialize constructs the provider for mode, subscribes to its change
// events, and runs its initialization.
func (e *Engine) Initialize(ctx context.Context, mode script.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.provider != nil {
		return oops.In("engine").New("engine already initialized")
	}
	return e.startProviderLocked(ctx, mode)
}

// startProviderLocked builds and initializes the provider for mode.
// Callers must hold e.mu.
func (e *Engine) startProviderLocked(ctx context.Context, mode script.Mode) error {
	provider, err := e.factory(mode)
	if err != nil {
		return oops.In("engine").With("mode", string(mode)).Wrap(err)
	}

	// A provider may notify synchronously from inside Initialize (the remote
	// provider does, after its initial refresh) while we hold e.mu. Those
	// early notifications are dropped; CurrentSnapshot below captures their
	// result. Only post-initialization changes flow through onProviderChange.
	// Teardown flips the flag back off so a notification racing a switch or
	// close can neither deadlock against e.mu nor replace a newer snapshot.
	forward := new(atomic.Bool)
	provider.Subscribe(func(s script.Snapshot) {
		if !forward.Load() {
			return
		}
		e.onProviderChange(s)
	})
	if err := provider.Initialize(ctx); err != nil {
		_ = provider.Close()
		return oops.In("engine").With("mode", string(mode)).Hint("provider initialization failed").Wrap(err)
	}
	forward.Store(true)

	e.provider = provider
	e.forward = forward
	e.mode = mode
	e.snapshot = provider.CurrentSnapshot()
	if e.metrics != nil {
		e.metrics.SnapshotScripts.Set(float64(len(e.snapshot.Records)))
	}

	e.logger.Info("engine provider started",
		"mode", string(mode),
		"scripts", len(e.snapshot.Records))
	return nil
}

// LoadedScripts returns a defensive copy of the current snapshot's records.
func (e *Engine) LoadedScripts() []script.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Copy().Records
}

// Snapshot returns a defensive copy of the current snapshot.
func (e *Engine) Snapshot() script.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot.Copy()
}

// ExecuteScript looks up a script by name and runs it against doc. An
// unknown name returns a failure result without touching the host.
func (e *Engine) ExecuteScript(ctx context.Context, name string, doc host.Document) bridge.Result {
	e.mu.Lock()
	rec, ok := e.snapshot.Lookup(name)
	e.mu.Unlock()

	if !ok {
		if e.metrics != nil {
			e.metrics.ExecutionsTotal.WithLabelValues("not_found").Inc()
		}
		return bridge.Result{
			Success: false,
			Message: fmt.Sprintf("script %q not found", name),
		}
	}

	result := e.executor.Execute(ctx, rec, doc)

	if e.metrics != nil {
		status := "failure"
		if result.Success {
			status = "success"
		}
		e.metrics.ExecutionsTotal.WithLabelValues(status).Inc()
		e.metrics.ExecutionSeconds.Observe(result.Elapsed.Seconds())
	}
	return result
}

// RefreshScripts forwards to the active provider's refresh.
func (e *Engine) RefreshScripts(ctx context.Context) error {
	e.mu.Lock()
	provider := e.provider
	e.mu.Unlock()

	if provider == nil {
		return oops.In("engine").New("engine not initialized")
	}
	if err := provider.Refresh(ctx); err != nil {
		if e.metrics != nil {
			e.metrics.RefreshFailures.Inc()
		}
		return err
	}
	return nil
}

// SwitchMode disposes the current provider and re-initializes with the new
// mode. A no-op when already in that mode.
func (e *Engine) SwitchMode(ctx context.Context, mode script.Mode) error {
	e.mu.Lock()

	if e.provider == nil {
		e.mu.Unlock()
		return oops.In("engine").New("engine not initialized")
	}
	if mode == e.mode {
		e.mu.Unlock()
		return nil
	}

	oldMode := e.mode
	old, forward := e.detachProviderLocked()

	// Close outside the lock: a watcher-style provider waits for its loop
	// goroutine on Close, and that loop may be mid-notification wanting e.mu.
	// The detached forward flag makes such a notification a no-op.
	e.mu.Unlock()
	forward.Store(false)
	if err := old.Close(); err != nil {
		e.logger.Warn("failed to close provider during mode switch",
			"mode", string(oldMode),
			"error", err)
	}
	e.mu.Lock()

	if err := e.startProviderLocked(ctx, mode); err != nil {
		e.mu.Unlock()
		return err
	}

	snapshot := e.snapshot.Copy()
	subs := append([]script.ChangeFunc(nil), e.subs...)
	e.mu.Unlock()

	e.logger.Info("engine mode switched", "mode", string(mode))
	for _, fn := range subs {
		fn(snapshot.Copy())
	}
	return nil
}

// Close disposes the active provider. The provider is closed outside the
// engine lock for the same reason SwitchMode does it.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.provider == nil {
		e.mu.Unlock()
		return nil
	}
	provider, forward := e.detachProviderLocked()
	e.mu.Unlock()

	forward.Store(false)
	return provider.Close()
}

// detachProviderLocked removes the active provider from the engine and
// returns it with its notification-forwarding flag. Callers must hold e.mu
// and are responsible for closing the provider.
func (e *Engine) detachProviderLocked() (script.Provider, *atomic.Bool) {
	provider, forward := e.provider, e.forward
	e.provider = nil
	e.forward = nil
	return provider, forward
}

// onProviderChange atomically replaces the snapshot, then re-emits the
// change to the engine's own subscribers.
func (e *Engine) onProviderChange(snapshot script.Snapshot) {
	e.mu.Lock()
	e.snapshot = snapshot
	subs := append([]script.ChangeFunc(nil), e.subs...)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SnapshotScripts.Set(float64(len(snapshot.Records)))
		e.metrics.SnapshotReloads.Inc()
	}

	e.logger.Debug("snapshot replaced", "scripts", len(snapshot.Records))
	for _, fn := range subs {
		fn(snapshot.Copy())
	}
}
