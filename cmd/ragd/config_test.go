// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigShow_RedactsSecrets(t *testing.T) {
	cfg := writeTestConfig(t, "http://127.0.0.1:1")
	t.Setenv("RAGD_STORAGE_POSTGRES_DSN", "postgres://user:pw@localhost/ragd")

	out, err := run(t, cfg, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "test-key-not-real")
	assert.NotContains(t, out, "user:pw")

	var settings map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &settings))
	gen, ok := settings["generator"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, redacted, gen["api_key"])
	assert.Equal(t, "openai", gen["provider"])
}

func TestConfigPath(t *testing.T) {
	cfg := writeTestConfig(t, "http://127.0.0.1:1")

	out, err := run(t, cfg, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, cfg+"\n", out)
}

func TestConfigValidate(t *testing.T) {
	cfg := writeTestConfig(t, "http://127.0.0.1:1")

	out, err := run(t, cfg, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid.")
}

func TestRedactSecrets(t *testing.T) {
	m := map[string]any{
		"api_key": "k",
		"nested": map[string]any{
			"postgres_dsn":  "postgres://x",
			"model":         "m",
			"empty_api_key": "",
		},
	}
	redactSecrets(m)
	assert.Equal(t, redacted, m["api_key"])
	nested := m["nested"].(map[string]any)
	assert.Equal(t, redacted, nested["postgres_dsn"])
	assert.Equal(t, "m", nested["model"])
	assert.Equal(t, "", nested["empty_api_key"])
}
