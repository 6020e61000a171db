// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package script

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/samber/oops"
)

// Discover walks root for manifest files and resolves each into a record.
// A malformed manifest, a failed schema check, or a missing artifact yields a
// DiscoveryError for that candidate only; discovery of the others continues.
//
// Duplicate names are resolved deterministically: manifests are processed in
// lexical path order and the first occurrence of a name wins. Later
// duplicates are reported as DiscoveryErrors.
func Discover(ctx context.Context, root string, source SourceKind, logger *slog.Logger) (Snapshot, []DiscoveryError) {
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now()
	snapshot := Snapshot{CapturedAt: now}

	manifestPaths, walkErrs := findManifests(root)
	errs := walkErrs

	seen := make(map[string]string, len(manifestPaths)) // name -> winning manifest path
	for _, path := range manifestPaths {
		if err := ctx.Err(); err != nil {
			return snapshot, errs
		}

		record, err := resolve(path, source, now)
		if err != nil {
			errs = append(errs, DiscoveryError{Path: path, Reason: err})
			logger.Warn("skipping script",
				"manifest", path,
				"error", err)
			continue
		}

		name := record.Manifest.Name
		if winner, dup := seen[name]; dup {
			errs = append(errs, DiscoveryError{
				Path:   path,
				Reason: oops.With("name", name).With("winner", winner).New("duplicate script name"),
			})
			logger.Warn("dropping duplicate script name",
				"name", name,
				"manifest", path,
				"kept", winner)
			continue
		}
		seen[name] = path

		snapshot.Records = append(snapshot.Records, record)
	}

	return snapshot, errs
}

// findManifests returns manifest paths under root in lexical order.
// A missing root is treated as an empty source, not an error.
func findManifests(root string) ([]string, []DiscoveryError) {
	var paths []string
	var errs []DiscoveryError

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			errs = append(errs, DiscoveryError{Path: path, Reason: err})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Name() == ManifestFileName {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		errs = append(errs, DiscoveryError{Path: root, Reason: err})
	}

	// WalkDir visits lexically already; sort anyway so the duplicate-name
	// tie-break never depends on filesystem ordering.
	sort.Strings(paths)
	return paths, errs
}

// resolve parses one manifest and verifies its artifact exists.
func resolve(manifestPath string, source SourceKind, now time.Time) (Record, error) {
	data, err := os.ReadFile(filepath.Clean(manifestPath))
	if err != nil {
		return Record{}, oops.With("operation", "read").Wrap(err)
	}

	if err := ValidateSchema(data); err != nil {
		return Record{}, oops.With("operation", "schema").Wrap(err)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return Record{}, oops.With("operation", "parse").Wrap(err)
	}

	dir := filepath.Dir(manifestPath)
	artifactPath, err := filepath.Abs(filepath.Join(dir, manifest.EntryArtifact))
	if err != nil {
		return Record{}, oops.With("operation", "resolve").Wrap(err)
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return Record{}, oops.With("operation", "artifact").With("path", artifactPath).Hint("entryArtifact must exist next to the manifest").Wrap(err)
	}
	if info.IsDir() {
		return Record{}, oops.With("path", artifactPath).New("entryArtifact is a directory")
	}

	if err := CheckArtifact(artifactPath); err != nil {
		return Record{}, oops.With("operation", "codecheck").Wrap(err)
	}

	return Record{
		Manifest:     manifest,
		ArtifactPath: artifactPath,
		Dir:          dir,
		Source:       source,
		DiscoveredAt: now,
		LastModified: info.ModTime(),
	}, nil
}
