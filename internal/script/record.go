// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package script

import (
	"time"
)

// SourceKind identifies which provider produced a record.
type SourceKind string

// Record sources.
const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// Record is a manifest resolved against a verified artifact on disk.
// A Record exists only if its artifact file was present at discovery time.
type Record struct {
	Manifest     *Manifest
	ArtifactPath string // absolute path to the entry artifact
	Dir          string // directory the manifest was discovered in
	Source       SourceKind
	DiscoveredAt time.Time
	LastModified time.Time // artifact mtime at discovery
}

// Snapshot is an ordered, name-unique collection of records captured at one
// discovery instant. Snapshots are replaced wholesale, never patched.
type Snapshot struct {
	Records    []Record
	CapturedAt time.Time
}

// Lookup returns the record with the given name, if present.
func (s Snapshot) Lookup(name string) (Record, bool) {
	for _, r := range s.Records {
		if r.Manifest.Name == name {
			return r, true
		}
	}
	return Record{}, false
}

// Names returns the script names in snapshot order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s.Records))
	for i, r := range s.Records {
		names[i] = r.Manifest.Name
	}
	return names
}

// Copy returns a snapshot with a defensively copied record slice.
// Records themselves are value types; manifests are immutable after parse.
func (s Snapshot) Copy() Snapshot {
	records := make([]Record, len(s.Records))
	copy(records, s.Records)
	return Snapshot{Records: records, CapturedAt: s.CapturedAt}
}

// SameMembership reports whether two snapshots contain the same scripts with
// the same artifact modification times. Used by providers to decide whether a
// discovery pass actually changed anything worth notifying about.
func (s Snapshot) SameMembership(other Snapshot) bool {
	if len(s.Records) != len(other.Records) {
		return false
	}
	byName := make(map[string]Record, len(other.Records))
	for _, r := range other.Records {
		byName[r.Manifest.Name] = r
	}
	for _, r := range s.Records {
		o, ok := byName[r.Manifest.Name]
		if !ok {
			return false
		}
		if !r.LastModified.Equal(o.LastModified) {
			return false
		}
		if r.ArtifactPath != o.ArtifactPath {
			return false
		}
	}
	return true
}
