// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package script

import (
	"context"
	"fmt"
)

// Mode selects which provider strategy the engine runs with.
type Mode string

// Provider modes.
const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeRemote:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("mode must be 'local' or 'remote', got %q", s)
	}
}

// ChangeFunc is invoked by a provider after it has replaced its snapshot.
// The snapshot passed is a consistent, fully-built view; subscribers must
// not retain and mutate its record slice.
type ChangeFunc func(Snapshot)

// Provider produces snapshots from one script source.
//
// Implementations: the local filesystem watcher (development hot-reload) and
// the TTL-cached remote source (production). Providers own their background
// resources; Close releases all of them.
type Provider interface {
	// Initialize runs the first discovery pass and starts any background
	// machinery (watchers, refresh checks). It must leave the provider with
	// a usable snapshot, possibly empty.
	Initialize(ctx context.Context) error

	// Refresh forces a discovery pass immediately, bypassing any debounce
	// or TTL decision. A failed refresh leaves the previous snapshot
	// authoritative.
	Refresh(ctx context.Context) error

	// CurrentSnapshot returns the last-good snapshot. It never performs I/O.
	CurrentSnapshot() Snapshot

	// Subscribe registers a change callback. Must be called before
	// Initialize; providers do not guarantee delivery to late subscribers.
	Subscribe(fn ChangeFunc)

	// Source identifies which kind of records this provider produces.
	Source() SourceKind

	// Close releases watchers, timers, and in-flight work.
	Close() error
}
