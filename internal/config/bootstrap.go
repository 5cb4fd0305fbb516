// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

//go:embed ragd.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/ragd/ragd.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ragd", "ragd.yaml"), nil
}

// WriteDefault writes the commented default config to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "config file %s already exists", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "writing config %s: %w", path, err)
	}
	return nil
}

// BootstrapConfig writes the default config to DefaultConfigPath if no file
// exists there yet. Returns the path written, or "" when nothing was written.
// Failures are logged and skipped.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	if err := WriteDefault(cfgPath, false); err != nil {
		slog.Debug("skipping config bootstrap", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
