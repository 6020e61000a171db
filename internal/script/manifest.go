// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package script provides script discovery and the manifest/record/snapshot model.
package script

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// ManifestFileName is the manifest file discovery looks for.
const ManifestFileName = "script.json"

// StackType controls how a script's UI control is composed with its group.
type StackType string

// Stack types supported by the UI layer.
const (
	StackTypeStacked  StackType = "stacked"
	StackTypeDropdown StackType = "dropdown"
)

// Manifest represents a script.json file: the declarative identity and
// entry point of one script. Manifests are immutable after parsing.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// EntryArtifact and EntryPoint are required but tagged omitempty so the
	// generated schema admits manifests written with the legacy aliases
	// entryAssembly/entryType. Validate enforces presence after aliasing.
	EntryArtifact string `json:"entryArtifact,omitempty"`
	EntryPoint    string `json:"entryPoint,omitempty"`

	// Capabilities are glob patterns granted to the script at execution
	// time, e.g. "doc.read.**" or "doc.write.param".
	Capabilities []string `json:"capabilities,omitempty"`

	// UI metadata, all optional.
	Panel      string    `json:"panel,omitempty"`
	Stack      string    `json:"stack,omitempty"`
	StackOrder int       `json:"stackOrder,omitempty"`
	StackType  StackType `json:"stackType,omitempty"`
	Tooltip    string    `json:"tooltip,omitempty"`
}

// manifestAliases carries the legacy field names still accepted on disk.
type manifestAliases struct {
	EntryAssembly string `json:"entryAssembly"`
	EntryType     string `json:"entryType"`
}

// maxNameLength is the maximum allowed length for script names.
const maxNameLength = 64

// namePattern validates script names: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a script.json file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	// Older manifests use entryAssembly/entryType for the same fields.
	var aliases manifestAliases
	if err := json.Unmarshal(data, &aliases); err == nil {
		if m.EntryArtifact == "" {
			m.EntryArtifact = aliases.EntryAssembly
		}
		if m.EntryPoint == "" {
			m.EntryPoint = aliases.EntryType
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not valid semver: %w", m.Version, err)
	}

	if m.EntryArtifact == "" {
		return fmt.Errorf("entryArtifact is required")
	}
	if m.EntryPoint == "" {
		return fmt.Errorf("entryPoint is required")
	}

	switch m.StackType {
	case "", StackTypeStacked, StackTypeDropdown:
	default:
		return fmt.Errorf("stackType must be 'stacked' or 'dropdown', got %q", m.StackType)
	}

	return nil
}

// SemVer returns the parsed manifest version. Validate must have passed.
func (m *Manifest) SemVer() *semver.Version {
	v, _ := semver.NewVersion(m.Version)
	return v
}
