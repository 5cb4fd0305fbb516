// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"time"
)

// SetSleep replaces the backoff sleep so retry tests run instantly.
func (b *Batcher) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	b.sleep = fn
}
