// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package generator

import (
	"context"
	"slices"
	"sync"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Config is what every backend needs to connect.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string // optional, useful for testing against a mock server
}

// Factory creates a backend from cfg.
type Factory func(ctx context.Context, cfg Config) (Generator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available to Open under name. Backends call it
// from init; registering the same name twice replaces the factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Providers lists the registered backend names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the backend named by cfg.Provider.
func Open(ctx context.Context, cfg Config) (Generator, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, ragerr.New(ragerr.CodeGeneratorNotFound, "generator: unknown provider: "+cfg.Provider,
			ragerr.FieldProvider(cfg.Provider), ragerr.Field("registered", Providers()))
	}
	return f(ctx, cfg)
}
