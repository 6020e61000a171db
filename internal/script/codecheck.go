// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package script

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/samber/oops"
)

// forbiddenPatterns are static checks applied to artifact source at discovery
// time. The execution sandbox blocks the same surface at runtime; rejecting
// here keeps an offending script out of the snapshot entirely so it never
// shows up as runnable.
var forbiddenPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"os library", regexp.MustCompile(`(?m)(^|[^\w.])os\s*\.`)},
	{"io library", regexp.MustCompile(`(?m)(^|[^\w.])io\s*\.`)},
	{"require", regexp.MustCompile(`(?m)(^|[^\w.])require\s*[(\s'"]`)},
	{"dofile", regexp.MustCompile(`(?m)(^|[^\w.])dofile\s*\(`)},
	{"loadfile", regexp.MustCompile(`(?m)(^|[^\w.])loadfile\s*\(`)},
	{"loadstring", regexp.MustCompile(`(?m)(^|[^\w.])loadstring\s*\(`)},
}

// maxArtifactBytes caps how large an artifact may be. Larger files are
// rejected at discovery rather than loaded into memory at execution time.
const maxArtifactBytes = 1 << 20 // 1 MiB

// CheckArtifact runs static pattern checks against an artifact file.
// It returns an error naming the first forbidden construct found.
func CheckArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return oops.With("path", path).Wrap(err)
	}
	if info.Size() > maxArtifactBytes {
		return oops.With("path", path).With("size", info.Size()).New("artifact exceeds maximum size")
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return oops.With("path", path).Wrap(err)
	}

	return CheckSource(data)
}

// CheckSource runs the static pattern checks against raw artifact source.
func CheckSource(data []byte) error {
	for _, p := range forbiddenPatterns {
		if p.re.Match(data) {
			return oops.With("pattern", p.name).New("artifact uses forbidden construct: " + p.name)
		}
	}
	return nil
}
