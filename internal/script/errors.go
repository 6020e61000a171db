// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package script

import "fmt"

// DiscoveryError records one candidate script that could not be turned into
// a record. Discovery continues past these; the script is simply absent from
// the resulting snapshot.
type DiscoveryError struct {
	Path   string // manifest path that failed
	Reason error
}

func (e DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %v", e.Path, e.Reason)
}

func (e DiscoveryError) Unwrap() error {
	return e.Reason
}
