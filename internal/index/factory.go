// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"context"
	"slices"
	"sync"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Options carries everything a backend needs to open an index.
type Options struct {
	Backend     string
	DataDir     string
	PostgresDSN string
	Dimensions  int
	Metric      Metric
}

// Factory opens an index backend.
type Factory func(ctx context.Context, opts Options) (Index, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

func init() {
	Register("memory", func(_ context.Context, opts Options) (Index, error) {
		return NewFlat(opts.Dimensions, opts.Metric), nil
	})
}

// Register makes a backend available to Open. Backend packages call this
// from init().
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends lists registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the index named by opts.Backend.
func Open(ctx context.Context, opts Options) (Index, error) {
	if opts.Dimensions <= 0 {
		return nil, ragerr.New(ragerr.CodeIndexQueryInvalid, "index dimensions must be positive",
			ragerr.Field("dimensions", opts.Dimensions))
	}
	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}

	factoriesMu.RLock()
	f, ok := factories[opts.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, ragerr.New(ragerr.CodeIndexBackendUnsupported, "unsupported index backend",
			ragerr.Field("backend", opts.Backend))
	}
	return f(ctx, opts)
}
