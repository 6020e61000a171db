// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package remote implements the production provider: a TTL-cached, network
// refreshed script source that stays usable offline.
package remote

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// IndexFileName is the cache index persisted alongside cached artifacts.
const IndexFileName = "index.json"

// CacheIndex drives the TTL decision of whether a network refresh is
// attempted before trusting the on-disk cache.
type CacheIndex struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Repository  string    `json:"repository"`
	Branch      string    `json:"branch"`
	RecordCount int       `json:"recordCount"`
}

// LoadIndex reads the cache index from dir. A missing index returns
// (nil, nil): the cache has simply never been refreshed.
func LoadIndex(dir string) (*CacheIndex, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache index: %w", err)
	}

	var idx CacheIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse cache index: %w", err)
	}
	return &idx, nil
}

// SaveIndex writes the cache index into dir.
func SaveIndex(dir string, idx *CacheIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFileName), data, 0o600); err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	return nil
}

// CatalogFileName is the file the remote repository publishes at its root.
const CatalogFileName = "catalog.yaml"

// Catalog is the published set of scripts on the remote source.
type Catalog struct {
	Version int            `yaml:"version"`
	Entries []CatalogEntry `yaml:"entries"`
}

// CatalogEntry names one published script and the files that make it up.
type CatalogEntry struct {
	Name  string        `yaml:"name"`
	Path  string        `yaml:"path"` // directory within the repository
	Files []CatalogFile `yaml:"files"`
}

// CatalogFile is one downloadable file, optionally integrity-checked.
type CatalogFile struct {
	Path     string `yaml:"path"`               // relative to the entry's Path
	Checksum string `yaml:"checksum,omitempty"` // hex BLAKE2b-256 of the content
}

// ParseCatalog parses a catalog.yaml document.
func ParseCatalog(data []byte) (*Catalog, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("catalog data is empty")
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid catalog YAML: %w", err)
	}

	for i, e := range c.Entries {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: name is required", i)
		}
		if e.Path == "" {
			return nil, fmt.Errorf("catalog entry %d (%s): path is required", i, e.Name)
		}
		if len(e.Files) == 0 {
			return nil, fmt.Errorf("catalog entry %d (%s): files are required", i, e.Name)
		}
		for j, f := range e.Files {
			if f.Path == "" {
				return nil, fmt.Errorf("catalog entry %s file %d: path is required", e.Name, j)
			}
		}
	}

	return &c, nil
}
