// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest

import "time"

// SetNow replaces the clock used for ingest timestamps and pending TTLs.
func (s *Service) SetNow(now func() time.Time) { s.now = now }
