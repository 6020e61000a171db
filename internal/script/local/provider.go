// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package local implements the development provider: a file-system watcher
// that mirrors a scripts directory into a live snapshot with debounced
// hot-reload.
package local

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"

	"github.com/modelscript/modelscript/internal/script"
)

// DefaultDebounce is the window that collapses a burst of file events into
// one discovery pass. Build tools write several events per logical edit
// (delete+create, partial writes); one reload per burst is enough.
const DefaultDebounce = 500 * time.Millisecond

// Compile-time interface check.
var _ script.Provider = (*Provider)(nil)

// Config configures the local provider.
type Config struct {
	// Dir is the development scripts directory. Created if missing.
	Dir string

	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration

	Logger *slog.Logger
}

// Provider watches a directory tree and re-discovers on changes.
type Provider struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	snapshot script.Snapshot
	subs     []script.ChangeFunc

	watcher *fsnotify.Watcher
	quit    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// New creates a local provider. Call Initialize before use.
func New(cfg Config) *Provider {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		dir:      cfg.Dir,
		debounce: debounce,
		logger:   logger,
		quit:     make(chan struct{}),
	}
}

// Source implements script.Provider.
func (p *Provider) Source() script.SourceKind { return script.SourceLocal }

// Subscribe implements script.Provider.
func (p *Provider) Subscribe(fn script.ChangeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Initialize ensures the directory exists, runs discovery once, and starts
// watching the tree for manifest and artifact changes.
func (p *Provider) Initialize(ctx context.Context) error {
	if p.dir == "" {
		return oops.In("local").New("scripts directory is required")
	}
	if err := os.MkdirAll(p.dir, 0o750); err != nil {
		return oops.In("local").With("dir", p.dir).Wrap(err)
	}

	snapshot, errs := script.Discover(ctx, p.dir, script.SourceLocal, p.logger)
	p.mu.Lock()
	p.snapshot = snapshot
	p.mu.Unlock()
	p.logger.Info("local scripts discovered",
		"dir", p.dir,
		"scripts", len(snapshot.Records),
		"errors", len(errs))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.In("local").Wrap(err)
	}
	p.watcher = watcher

	if err := p.watchTree(p.dir); err != nil {
		_ = watcher.Close()
		return err
	}

	p.wg.Add(1)
	go p.loop()

	return nil
}

// Refresh forces an immediate discovery pass, bypassing the debounce.
func (p *Provider) Refresh(ctx context.Context) error {
	p.rediscover(ctx)
	return nil
}

// CurrentSnapshot implements script.Provider.
func (p *Provider) CurrentSnapshot() script.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot.Copy()
}

// Close stops the watcher and the debounce loop.
func (p *Provider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.quit)
		if p.watcher != nil {
			err = p.watcher.Close()
		}
		p.wg.Wait()
	})
	return err
}

// watchTree adds watches for dir and every subdirectory.
func (p *Provider) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return oops.In("local").With("path", path).Wrap(err)
		}
		if d.IsDir() {
			if err := p.watcher.Add(path); err != nil {
				return oops.In("local").With("path", path).Hint("failed to watch directory").Wrap(err)
			}
		}
		return nil
	})
}

// relevant filters events to manifest and artifact files. Everything else
// (editor swap files, logs) never restarts the debounce timer.
func relevant(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua", ".json":
		return true
	default:
		return false
	}
}

// loop consumes watcher events, debouncing bursts into one discovery pass.
// A parse error during rediscovery never stops the watcher.
func (p *Provider) loop() {
	defer p.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	arm := func() {
		if timer == nil {
			timer = time.NewTimer(p.debounce)
			timerC = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.debounce)
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-p.quit:
			return

		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			// New directories need their own watch before their contents
			// produce events.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := p.watchTree(ev.Name); err != nil {
						p.logger.Warn("failed to watch new directory",
							"path", ev.Name,
							"error", err)
					}
					arm()
					continue
				}
			}
			if !relevant(ev.Name) {
				continue
			}
			arm()

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("watcher error", "dir", p.dir, "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			p.rediscover(context.Background())
		}
	}
}

// rediscover runs a discovery pass and notifies subscribers when the
// snapshot actually changed in membership or timestamps.
func (p *Provider) rediscover(ctx context.Context) {
	snapshot, errs := script.Discover(ctx, p.dir, script.SourceLocal, p.logger)
	for _, e := range errs {
		p.logger.Warn("discovery error", "manifest", e.Path, "error", e.Reason)
	}

	p.mu.Lock()
	changed := !snapshot.SameMembership(p.snapshot)
	p.snapshot = snapshot
	subs := append([]script.ChangeFunc(nil), p.subs...)
	p.mu.Unlock()

	if !changed {
		return
	}

	p.logger.Info("local scripts reloaded",
		"dir", p.dir,
		"scripts", len(snapshot.Records))
	for _, fn := range subs {
		fn(snapshot.Copy())
	}
}
