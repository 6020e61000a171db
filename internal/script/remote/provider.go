// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package remote

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/modelscript/modelscript/internal/script"
)

// DefaultExpiry is how long the on-disk cache is trusted before a network
// refresh is attempted.
const DefaultExpiry = 24 * time.Hour

// scriptsSubdir is where cached scripts live inside the cache directory.
const scriptsSubdir = "scripts"

// Compile-time interface check.
var _ script.Provider = (*Provider)(nil)

// Config configures the remote provider.
type Config struct {
	// Repository is the remote source address serving raw files.
	Repository string

	// Branch selects the published line within the repository.
	Branch string

	// CacheDir holds the local cache: scripts/ plus index.json.
	CacheDir string

	// Expiry overrides DefaultExpiry when positive.
	Expiry time.Duration

	// Fetcher overrides the HTTP fetcher. Tests inject fakes here.
	Fetcher Fetcher

	Logger *slog.Logger
}

// Provider serves snapshots from an on-disk cache, refreshed from the
// remote source when the cache index says it has gone stale. The snapshot
// is always served from memory; the network is never touched synchronously
// by reads.
type Provider struct {
	repository string
	branch     string
	cacheDir   string
	expiry     time.Duration
	fetcher    Fetcher
	logger     *slog.Logger

	// now is swappable for TTL tests.
	now func() time.Time

	mu       sync.Mutex
	snapshot script.Snapshot
	index    *CacheIndex
	subs     []script.ChangeFunc

	// refreshMu serializes refresh attempts; the latest completed result wins.
	refreshMu sync.Mutex
}

// New creates a remote provider. Call Initialize before use.
func New(cfg Config) *Provider {
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(cfg.Repository, cfg.Branch, nil)
	}
	return &Provider{
		repository: cfg.Repository,
		branch:     cfg.Branch,
		cacheDir:   cfg.CacheDir,
		expiry:     expiry,
		fetcher:    fetcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Source implements script.Provider.
func (p *Provider) Source() script.SourceKind { return script.SourceRemote }

// Subscribe implements script.Provider.
func (p *Provider) Subscribe(fn script.ChangeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Initialize loads the on-disk cache into a snapshot immediately, so the
// engine is usable before any network call, then refreshes if the cache
// index says the cache is stale. A failed refresh is logged, not fatal.
func (p *Provider) Initialize(ctx context.Context) error {
	if p.cacheDir == "" {
		return oops.In("remote").New("cache directory is required")
	}
	if p.repository == "" {
		return oops.In("remote").New("repository is required")
	}
	if err := os.MkdirAll(p.scriptsDir(), 0o750); err != nil {
		return oops.In("remote").With("dir", p.cacheDir).Wrap(err)
	}

	index, err := LoadIndex(p.cacheDir)
	if err != nil {
		// A corrupt index forces a refresh but does not lose the cache.
		p.logger.Warn("cache index unreadable, treating cache as stale",
			"dir", p.cacheDir,
			"error", err)
	}

	snapshot, errs := script.Discover(ctx, p.scriptsDir(), script.SourceRemote, p.logger)
	p.mu.Lock()
	p.snapshot = snapshot
	p.index = index
	p.mu.Unlock()
	p.logger.Info("cached scripts loaded",
		"dir", p.scriptsDir(),
		"scripts", len(snapshot.Records),
		"errors", len(errs))

	if p.shouldRefresh() {
		if err := p.Refresh(ctx); err != nil {
			p.logger.Warn("initial refresh failed, serving cached scripts",
				"repository", p.repository,
				"error", err)
		}
	}

	return nil
}

// shouldRefresh is true if the cache has never been refreshed or its index
// is older than the expiry.
func (p *Provider) shouldRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index == nil {
		return true
	}
	return p.now().Sub(p.index.LastUpdated) > p.expiry
}

// Refresh fetches the current published set and, on success, replaces the
// entire cache directory wholesale and recomputes the snapshot. On any
// failure the existing cached snapshot remains authoritative.
func (p *Provider) Refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	catalog, err := p.fetcher.FetchCatalog(ctx)
	if err != nil {
		p.logger.Warn("catalog fetch failed, keeping cached scripts",
			"repository", p.repository,
			"error", err)
		return err
	}

	staging, err := os.MkdirTemp(p.cacheDir, ".staging-")
	if err != nil {
		return oops.In("remote").With("dir", p.cacheDir).Wrap(err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := p.download(ctx, catalog, staging); err != nil {
		p.logger.Warn("download failed, keeping cached scripts",
			"repository", p.repository,
			"error", err)
		return err
	}

	if err := p.swapCache(staging); err != nil {
		return err
	}

	index := &CacheIndex{
		LastUpdated: p.now(),
		Repository:  p.repository,
		Branch:      p.branch,
		RecordCount: len(catalog.Entries),
	}
	if err := SaveIndex(p.cacheDir, index); err != nil {
		p.logger.Warn("failed to persist cache index", "error", err)
	}

	snapshot, errs := script.Discover(ctx, p.scriptsDir(), script.SourceRemote, p.logger)
	for _, e := range errs {
		p.logger.Warn("discovery error", "manifest", e.Path, "error", e.Reason)
	}

	p.mu.Lock()
	changed := !snapshot.SameMembership(p.snapshot)
	p.snapshot = snapshot
	p.index = index
	subs := append([]script.ChangeFunc(nil), p.subs...)
	p.mu.Unlock()

	p.logger.Info("remote scripts refreshed",
		"repository", p.repository,
		"branch", p.branch,
		"scripts", len(snapshot.Records))

	if changed {
		for _, fn := range subs {
			fn(snapshot.Copy())
		}
	}

	return nil
}

// CurrentSnapshot implements script.Provider. Always served from memory.
func (p *Provider) CurrentSnapshot() script.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot.Copy()
}

// Close implements script.Provider. The remote provider holds no background
// resources outside an in-flight refresh, which it waits out.
func (p *Provider) Close() error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()
	return nil
}

func (p *Provider) scriptsDir() string {
	return filepath.Join(p.cacheDir, scriptsSubdir)
}

// download fetches every catalog entry into the staging directory,
// verifying checksums where the catalog published them.
func (p *Provider) download(ctx context.Context, catalog *Catalog, staging string) error {
	for _, entry := range catalog.Entries {
		entryDir := filepath.Join(staging, entry.Name)
		if err := os.MkdirAll(entryDir, 0o750); err != nil {
			return oops.In("remote").With("script", entry.Name).Wrap(err)
		}

		for _, file := range entry.Files {
			remotePath := entry.Path + "/" + file.Path
			data, err := p.fetcher.FetchFile(ctx, remotePath)
			if err != nil {
				return oops.In("remote").With("script", entry.Name).With("file", remotePath).Wrap(err)
			}
			if err := VerifyChecksum(data, file.Checksum); err != nil {
				return oops.In("remote").With("script", entry.Name).With("file", remotePath).Wrap(err)
			}

			dest := filepath.Join(entryDir, filepath.FromSlash(file.Path))
			if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
				return oops.In("remote").With("script", entry.Name).Wrap(err)
			}
			if err := os.WriteFile(dest, data, 0o600); err != nil {
				return oops.In("remote").With("script", entry.Name).With("file", dest).Wrap(err)
			}
		}
	}
	return nil
}

// swapCache replaces the scripts directory with the staged download.
// This is a replace, not a merge: scripts removed upstream disappear.
func (p *Provider) swapCache(staging string) error {
	old := p.scriptsDir() + ".old"
	_ = os.RemoveAll(old)

	if err := os.Rename(p.scriptsDir(), old); err != nil && !os.IsNotExist(err) {
		return oops.In("remote").With("dir", p.scriptsDir()).Hint("failed to move old cache aside").Wrap(err)
	}
	if err := os.Rename(staging, p.scriptsDir()); err != nil {
		// Put the old cache back so the provider still has artifacts on disk.
		_ = os.Rename(old, p.scriptsDir())
		return oops.In("remote").With("dir", p.scriptsDir()).Hint("failed to install new cache").Wrap(err)
	}
	_ = os.RemoveAll(old)
	return nil
}
