// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

//go:build integration

package engine_test

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/blake2b"

	"github.com/modelscript/modelscript/internal/host"
	"github.com/modelscript/modelscript/internal/host/hosttest"
	"github.com/modelscript/modelscript/internal/script"
	"github.com/modelscript/modelscript/internal/script/bridge"
	"github.com/modelscript/modelscript/internal/script/engine"
	"github.com/modelscript/modelscript/internal/script/local"
	"github.com/modelscript/modelscript/internal/script/remote"
)

// publishedFetcher serves a fixed published set from memory.
type publishedFetcher struct {
	catalog *remote.Catalog
	files   map[string][]byte
}

func (f *publishedFetcher) FetchCatalog(ctx context.Context) (*remote.Catalog, error) {
	return f.catalog, nil
}

func (f *publishedFetcher) FetchFile(ctx context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func publishScript(f *publishedFetcher, name, entryPoint, source string, caps ...string) {
	capsJSON := ""
	for i, c := range caps {
		if i > 0 {
			capsJSON += ", "
		}
		capsJSON += fmt.Sprintf("%q", c)
	}
	manifest := []byte(fmt.Sprintf(`{
  "name": %q,
  "version": "1.0.0",
  "entryArtifact": "main.lua",
  "entryPoint": %q,
  "capabilities": [%s]
}`, name, entryPoint, capsJSON))
	artifact := []byte(source)

	digest := func(data []byte) string {
		s := blake2b.Sum256(data)
		return hex.EncodeToString(s[:])
	}

	base := "scripts/" + name
	f.files[base+"/script.json"] = manifest
	f.files[base+"/main.lua"] = artifact
	f.catalog.Entries = append(f.catalog.Entries, remote.CatalogEntry{
		Name: name,
		Path: base,
		Files: []remote.CatalogFile{
			{Path: "script.json", Checksum: digest(manifest)},
			{Path: "main.lua", Checksum: digest(artifact)},
		},
	})
}

func writeLocalScript(dir, name, entryPoint, source string, caps ...string) {
	scriptDir := filepath.Join(dir, name)
	Expect(os.MkdirAll(scriptDir, 0o750)).To(Succeed())

	capsJSON := ""
	for i, c := range caps {
		if i > 0 {
			capsJSON += ", "
		}
		capsJSON += fmt.Sprintf("%q", c)
	}
	manifest := fmt.Sprintf(`{
  "name": %q,
  "version": "1.0.0",
  "entryArtifact": "main.lua",
  "entryPoint": %q,
  "capabilities": [%s]
}`, name, entryPoint, capsJSON)
	Expect(os.WriteFile(filepath.Join(scriptDir, script.ManifestFileName), []byte(manifest), 0o600)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(scriptDir, "main.lua"), []byte(source), 0o600)).To(Succeed())
}

var _ = Describe("Engine pipeline", func() {
	var (
		ctx        context.Context
		scriptsDir string
		cacheDir   string
		fetcher    *publishedFetcher
		dispatcher *host.SerialDispatcher
		doc        *hosttest.MemDocument
		eng        *engine.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		scriptsDir = GinkgoT().TempDir()
		cacheDir = GinkgoT().TempDir()

		fetcher = &publishedFetcher{
			catalog: &remote.Catalog{Version: 1},
			files:   make(map[string][]byte),
		}
		publishScript(fetcher, "published-counter", "count", `
			function count()
				return { total = #host.selection() }
			end
		`, "doc.read")

		dispatcher = host.NewSerialDispatcher()
		doc = hosttest.NewMemDocument("integration-doc")

		br := bridge.New(dispatcher, doc, nil)

		factory := func(mode script.Mode) (script.Provider, error) {
			switch mode {
			case script.ModeLocal:
				return local.New(local.Config{Dir: scriptsDir, Debounce: 50 * time.Millisecond}), nil
			case script.ModeRemote:
				return remote.New(remote.Config{
					Repository: "https://scripts.example.com/modelscript",
					Branch:     "main",
					CacheDir:   cacheDir,
					Fetcher:    fetcher,
				}), nil
			default:
				return nil, fmt.Errorf("unknown mode %s", mode)
			}
		}

		var err error
		eng, err = engine.New(factory, br)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(eng.Close()).To(Succeed())
		Expect(dispatcher.Close()).To(Succeed())
	})

	It("discovers, executes, and commits a local script", func() {
		writeLocalScript(scriptsDir, "wall-marker", "mark_walls", `
			function mark_walls()
				local n = 0
				for i, id in ipairs(host.selection()) do
					host.set_param(id, "Mark", "W-" .. i)
					n = i
				end
				return { marked = n }
			end
		`, "doc.read", "doc.write.param")

		Expect(eng.Initialize(ctx, script.ModeLocal)).To(Succeed())

		wall := doc.AddElement("Walls", "Basic Wall", nil)
		doc.Select(wall)

		res := eng.ExecuteScript(ctx, "wall-marker", doc)
		Expect(res.Success).To(BeTrue(), res.Message)
		Expect(res.Output).To(HaveKeyWithValue("marked", float64(1)))

		v, err := doc.Parameter(wall, "Mark")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Str).To(Equal("W-1"))
	})

	It("hot-reloads an edited script", func() {
		writeLocalScript(scriptsDir, "versioned", "version", `
			function version() return { v = 1 } end
		`)
		Expect(eng.Initialize(ctx, script.ModeLocal)).To(Succeed())

		res := eng.ExecuteScript(ctx, "versioned", doc)
		Expect(res.Success).To(BeTrue(), res.Message)
		Expect(res.Output).To(HaveKeyWithValue("v", float64(1)))

		// Edit the artifact; the watcher picks it up after the debounce.
		writeLocalScript(scriptsDir, "versioned", "version", `
			function version() return { v = 2 } end
		`)

		Eventually(func() any {
			r := eng.ExecuteScript(ctx, "versioned", doc)
			if !r.Success {
				return nil
			}
			return r.Output["v"]
		}, 5*time.Second, 50*time.Millisecond).Should(Equal(float64(2)))
	})

	It("rolls back all writes when a script fails midway", func() {
		writeLocalScript(scriptsDir, "half-done", "run", `
			function run()
				local sel = host.selection()
				host.set_param(sel[1], "Mark", "changed")
				error("deliberate failure")
			end
		`, "doc.read", "doc.write.param")
		Expect(eng.Initialize(ctx, script.ModeLocal)).To(Succeed())

		wall := doc.AddElement("Walls", "Basic Wall", map[string]host.Value{
			"Mark": host.StringValue("untouched"),
		})
		doc.Select(wall)

		res := eng.ExecuteScript(ctx, "half-done", doc)
		Expect(res.Success).To(BeFalse())
		Expect(res.Message).To(ContainSubstring("deliberate failure"))

		v, err := doc.Parameter(wall, "Mark")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Str).To(Equal("untouched"))
	})

	It("switches from local to remote and serves only published scripts", func() {
		writeLocalScript(scriptsDir, "dev-only", "run", `function run() return { ok = true } end`)
		Expect(eng.Initialize(ctx, script.ModeLocal)).To(Succeed())
		Expect(eng.Snapshot().Names()).To(ConsistOf("dev-only"))

		Expect(eng.SwitchMode(ctx, script.ModeRemote)).To(Succeed())
		Expect(eng.Mode()).To(Equal(script.ModeRemote))
		Expect(eng.Snapshot().Names()).To(ConsistOf("published-counter"))

		// The development script is gone; the published one executes.
		res := eng.ExecuteScript(ctx, "dev-only", doc)
		Expect(res.Success).To(BeFalse())

		doc.Select(doc.AddElement("Walls", "Basic Wall", nil))
		res = eng.ExecuteScript(ctx, "published-counter", doc)
		Expect(res.Success).To(BeTrue(), res.Message)
		Expect(res.Output).To(HaveKeyWithValue("total", float64(1)))
	})

	It("denies undeclared capabilities end to end", func() {
		writeLocalScript(scriptsDir, "overreach", "run", `
			function run()
				host.create_instance("Basic Wall", "Walls")
			end
		`, "doc.read")
		Expect(eng.Initialize(ctx, script.ModeLocal)).To(Succeed())

		res := eng.ExecuteScript(ctx, "overreach", doc)
		Expect(res.Success).To(BeFalse())
		Expect(res.Message).To(ContainSubstring("capability denied"))
		Expect(doc.ElementsByCategory("Walls")).To(BeEmpty())
	})
})
