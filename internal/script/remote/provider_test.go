// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package remote_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/modelscript/modelscript/internal/script"
	"github.com/modelscript/modelscript/internal/script/remote"
)

// fakeFetcher serves an in-memory published set, or fails on demand.
type fakeFetcher struct {
	catalog *remote.Catalog
	files   map[string][]byte // repository-relative path -> content
	err     error
	fetches atomic.Int32
}

func (f *fakeFetcher) FetchCatalog(ctx context.Context) (*remote.Catalog, error) {
	f.fetches.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.catalog, nil
}

func (f *fakeFetcher) FetchFile(ctx context.Context, path string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

// publish builds a fake fetcher serving the named scripts with valid
// manifests, artifacts, and checksums.
func publish(names ...string) *fakeFetcher {
	f := &fakeFetcher{
		catalog: &remote.Catalog{Version: 1},
		files:   make(map[string][]byte),
	}
	for _, name := range names {
		manifest := []byte(fmt.Sprintf(`{
  "name": %q,
  "version": "1.0.0",
  "entryArtifact": "main.lua",
  "entryPoint": "run"
}`, name))
		artifact := []byte("function run() return 1 end")

		base := "scripts/" + name
		f.files[base+"/script.json"] = manifest
		f.files[base+"/main.lua"] = artifact

		f.catalog.Entries = append(f.catalog.Entries, remote.CatalogEntry{
			Name: name,
			Path: base,
			Files: []remote.CatalogFile{
				{Path: "script.json", Checksum: sum(manifest)},
				{Path: "main.lua", Checksum: sum(artifact)},
			},
		})
	}
	return f
}

func sum(data []byte) string {
	s := blake2b.Sum256(data)
	return hex.EncodeToString(s[:])
}

func newProvider(t *testing.T, cacheDir string, f remote.Fetcher) *remote.Provider {
	t.Helper()
	p := remote.New(remote.Config{
		Repository: "https://scripts.example.com/modelscript",
		Branch:     "main",
		CacheDir:   cacheDir,
		Fetcher:    f,
	})
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func TestProvider_InitializeFetchesWhenCacheEmpty(t *testing.T) {
	p := newProvider(t, t.TempDir(), publish("counter", "renumber"))
	require.NoError(t, p.Initialize(context.Background()))

	snap := p.CurrentSnapshot()
	assert.ElementsMatch(t, []string{"counter", "renumber"}, snap.Names())
	assert.Equal(t, script.SourceRemote, p.Source())
	for _, r := range snap.Records {
		assert.Equal(t, script.SourceRemote, r.Source)
	}
}

func TestProvider_OfflineServesCache(t *testing.T) {
	cacheDir := t.TempDir()

	// First run populates the cache.
	p := newProvider(t, cacheDir, publish("counter"))
	require.NoError(t, p.Initialize(context.Background()))
	require.Len(t, p.CurrentSnapshot().Records, 1)
	require.NoError(t, p.Close())

	// Second run is offline; the cache index is fresh so no fetch happens
	// and the cache serves the snapshot.
	offline := &fakeFetcher{err: fmt.Errorf("network unreachable")}
	p2 := newProvider(t, cacheDir, offline)
	require.NoError(t, p2.Initialize(context.Background()))

	snap := p2.CurrentSnapshot()
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "counter", snap.Records[0].Manifest.Name)
	assert.Zero(t, offline.fetches.Load())
}

func TestProvider_ExpiredCacheTriggersRefresh(t *testing.T) {
	cacheDir := t.TempDir()

	p := newProvider(t, cacheDir, publish("counter"))
	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.Close())

	// Restart with a clock past the expiry: a refresh is attempted and the
	// new published set replaces the cache.
	f := publish("counter", "brand-new")
	p2 := newProvider(t, cacheDir, f)
	remote.SetNow(p2, func() time.Time { return time.Now().Add(48 * time.Hour) })
	require.NoError(t, p2.Initialize(context.Background()))

	assert.Positive(t, f.fetches.Load())
	assert.ElementsMatch(t, []string{"counter", "brand-new"}, p2.CurrentSnapshot().Names())
}

func TestProvider_FailedRefreshKeepsSnapshot(t *testing.T) {
	cacheDir := t.TempDir()

	f := publish("counter")
	p := newProvider(t, cacheDir, f)
	require.NoError(t, p.Initialize(context.Background()))
	require.Len(t, p.CurrentSnapshot().Records, 1)

	// The network goes away; an explicit refresh fails but the last-good
	// snapshot stays authoritative.
	f.err = fmt.Errorf("connection refused")
	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"counter"}, p.CurrentSnapshot().Names())
}

func TestProvider_ChecksumMismatchAbortsRefresh(t *testing.T) {
	cacheDir := t.TempDir()

	f := publish("counter")
	p := newProvider(t, cacheDir, f)
	require.NoError(t, p.Initialize(context.Background()))

	// Corrupt one published file after the catalog recorded its checksum.
	f.files["scripts/counter/main.lua"] = []byte("function run() return 666 end")
	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	// The cached copy survives intact.
	assert.Equal(t, []string{"counter"}, p.CurrentSnapshot().Names())
}

func TestProvider_RefreshReplacesWholesale(t *testing.T) {
	cacheDir := t.TempDir()

	p := newProvider(t, cacheDir, publish("old-script"))
	require.NoError(t, p.Initialize(context.Background()))
	require.Equal(t, []string{"old-script"}, p.CurrentSnapshot().Names())
	require.NoError(t, p.Close())

	// The upstream removed old-script and published new-script. A refresh
	// replaces the cache: removed scripts disappear rather than lingering.
	p2 := newProvider(t, cacheDir, publish("new-script"))
	require.NoError(t, p2.Initialize(context.Background()))
	require.NoError(t, p2.Refresh(context.Background()))

	assert.Equal(t, []string{"new-script"}, p2.CurrentSnapshot().Names())
}

func TestProvider_NotifiesOnChange(t *testing.T) {
	cacheDir := t.TempDir()

	f := publish("counter")
	p := newProvider(t, cacheDir, f)

	var notified atomic.Int32
	p.Subscribe(func(s script.Snapshot) { notified.Add(1) })
	require.NoError(t, p.Initialize(context.Background()))

	// The initial refresh filled an empty cache: exactly one notification.
	assert.Equal(t, int32(1), notified.Load())
}

func TestProvider_Initialize_Validation(t *testing.T) {
	p := remote.New(remote.Config{CacheDir: t.TempDir()})
	assert.Error(t, p.Initialize(context.Background()))

	p = remote.New(remote.Config{Repository: "https://example.com"})
	assert.Error(t, p.Initialize(context.Background()))
}
