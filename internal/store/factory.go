// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"sync"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Options selects and configures a metadata store backend.
type Options struct {
	Backend     string
	DataDir     string
	PostgresDSN string
}

// Factory opens a metadata store backend.
type Factory func(ctx context.Context, opts Options) (MetadataStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

func init() {
	RegisterBackend("memory", func(context.Context, Options) (MetadataStore, error) {
		return NewMemory(), nil
	})
}

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(opts Options) string {
	if opts.Backend == "" {
		return "sqlite"
	}
	return opts.Backend
}

// Open creates the metadata store named by opts.Backend.
func Open(ctx context.Context, opts Options) (MetadataStore, error) {
	backend := resolveBackend(opts)

	factoriesMu.RLock()
	f, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, ragerr.New(ragerr.CodeStoreBackendUnsupported, "unsupported storage backend",
			ragerr.Field("backend", backend))
	}
	return f(ctx, opts)
}
