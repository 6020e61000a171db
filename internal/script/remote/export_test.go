// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelScript Contributors

package remote

import "time"

// SetNow swaps the provider's clock for TTL tests.
func SetNow(p *Provider, now func() time.Time) {
	p.now = now
}
