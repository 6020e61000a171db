// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

// Package capability provides runtime capability enforcement for scripts.
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// Examples:
//   - "doc.read.*" matches "doc.read.selection" but NOT "doc.read.param.width"
//   - "doc.read.**" matches both
//   - "**" matches any capability
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// compiledGrant holds a pattern and its compiled glob for efficient matching.
type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks script capabilities at runtime.
//
// Enforcer is safe for concurrent use. The zero value is ready to use
// without calling NewEnforcer.
type Enforcer struct {
	grants map[string][]compiledGrant // script name -> compiled grants
	mu     sync.RWMutex
}

// NewEnforcer creates a capability enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{
		grants: make(map[string][]compiledGrant),
	}
}

// SetGrants configures capabilities for a script, replacing any previous
// grants. The slice is copied. If any pattern fails to compile, no state
// changes are made.
func (e *Enforcer) SetGrants(script string, capabilities []string) error {
	if script == "" {
		return errors.New("script name cannot be empty")
	}

	// Compile all patterns before acquiring the lock (fail-fast, atomic).
	compiled := make([]compiledGrant, len(capabilities))
	for i, pattern := range capabilities {
		if pattern == "" {
			return fmt.Errorf("capability %d: empty capability pattern", i)
		}
		// Compile with '.' as separator so '*' doesn't cross segment boundaries.
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return fmt.Errorf("capability %d (%q): %w", i, pattern, err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}

	e.grants[script] = compiled
	return nil
}

// RemoveGrants unregisters a script, removing all its capabilities.
// Safe to call for unknown scripts or on a zero-value Enforcer.
func (e *Enforcer) RemoveGrants(script string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.grants == nil {
		return
	}
	delete(e.grants, script)
}

// Grants returns a copy of the patterns granted to a script, or nil if the
// script is not registered.
func (e *Enforcer) Grants(script string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[script]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Check returns true if the script has the requested capability.
// Unknown scripts, empty names, and empty capabilities are denied.
func (e *Enforcer) Check(script, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.grants == nil {
		return false
	}

	for _, grant := range e.grants[script] {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}
