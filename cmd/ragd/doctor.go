// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/sigil-dev/ragd/internal/config"
	"github.com/sigil-dev/ragd/internal/generator"
	"github.com/sigil-dev/ragd/internal/secrets"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, configuration, API keys, storage, disk space and a running server.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "", "server address to check (default: server.listen from config)")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr := statusAddress(cmd)
	cfg, cfgErr := loadConfig()
	dataDir := viper.GetString("storage.data_dir")

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(cfgErr) }},
		{"Generator", func() string { return checkGenerator(cfg) }},
		{"Embedding", func() string { return checkEmbedding(cfg) }},
		{"Storage", func() string { return checkStorage(cfg) }},
		{"Guard", func() string { return checkGuard(cfg) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
		{"Server", func() string { return checkServer(addr) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("ragd %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(loadErr error) string {
	source := "using defaults (no config file found)"
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		source = fmt.Sprintf("loaded from %s", cfgFile)
	}
	if loadErr != nil {
		return fmt.Sprintf("invalid, %s: %s", source, loadErr)
	}
	return source
}

func checkGenerator(cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	g := cfg.Generator
	registered := false
	for _, p := range generator.Providers() {
		if p == g.Provider {
			registered = true
			break
		}
	}
	if !registered {
		return fmt.Sprintf("provider %q not available (have: %s)", g.Provider, strings.Join(generator.Providers(), ", "))
	}
	return fmt.Sprintf("%s/%s, %s", g.Provider, g.Model, describeKey(g.APIKey))
}

func checkEmbedding(cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	e := cfg.Embedding
	if e.Provider == "hashing" {
		return fmt.Sprintf("hashing, %d dims (local, no API key needed)", e.Dimensions)
	}
	return fmt.Sprintf("%s/%s, %d dims, %s", e.Provider, e.Model, e.Dimensions, describeKey(e.APIKey))
}

// describeKey reports whether an API key is set without revealing it.
// Keyring URIs still present here failed to resolve.
func describeKey(key string) string {
	switch {
	case key == "":
		return "no API key (set one with 'ragd secret set' or RAGD_*_API_KEY)"
	case secrets.IsRef(key):
		return fmt.Sprintf("API key %s could not be resolved from the keyring", key)
	default:
		return "API key set"
	}
}

func checkStorage(cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	s := cfg.Storage
	if s.Backend == "postgres" || cfg.Index.Backend == "pgvector" {
		return fmt.Sprintf("metadata %s, index %s (postgres)", s.Backend, cfg.Index.Backend)
	}
	return fmt.Sprintf("metadata %s, index %s in %s", s.Backend, cfg.Index.Backend, s.DataDir)
}

func checkGuard(cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	g := cfg.Guard
	if !g.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("document %s, passage %s, answer %s", g.Document, g.Passage, g.Answer)
}

func checkServer(addr string) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := newServerClient(addr).getJSON("/api/v1/status", &body); err != nil {
		if ragerr.HasCode(err, ragerr.CodeCLIServerDown) {
			return fmt.Sprintf("not running at %s (run 'ragd serve')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); path == "" || os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
