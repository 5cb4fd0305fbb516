// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets_test

import (
	"testing"

	"github.com/sigil-dev/ragd/internal/secrets"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    secrets.Ref
		isRef   bool
		wantErr bool
	}{
		{"local entry", "keyring://ragd/openai-api-key", secrets.Ref{Service: "ragd", Name: "openai-api-key"}, true, false},
		{"slashes in name", "keyring://ragd/team/prod/key", secrets.Ref{Service: "ragd", Name: "team/prod/key"}, true, false},
		{"other service", "keyring://vault-sync/dsn", secrets.Ref{Service: "vault-sync", Name: "dsn"}, true, false},
		{"literal key", "sk-abc123", secrets.Ref{}, false, false},
		{"empty", "", secrets.Ref{}, false, false},
		{"other scheme", "vault://secret/key", secrets.Ref{}, false, false},
		{"missing name", "keyring://ragd/", secrets.Ref{}, true, true},
		{"missing service", "keyring:///key", secrets.Ref{}, true, true},
		{"no separator", "keyring://ragd", secrets.Ref{}, true, true},
		{"scheme only", "keyring://", secrets.Ref{}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := secrets.ParseRef(tt.value)
			assert.Equal(t, tt.isRef, ok)
			assert.Equal(t, tt.isRef, secrets.IsRef(tt.value))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ragerr.HasCode(err, ragerr.CodeSecretInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRef_RoundTrip(t *testing.T) {
	ref := secrets.APIKeyRef("google")
	assert.Equal(t, "keyring://ragd/google-api-key", ref.String())

	parsed, ok, err := secrets.ParseRef(ref.String())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ref, parsed)
}

// mapStore is an in-memory Store keyed by the ref's config form.
type mapStore map[string]string

func (m mapStore) Set(ref secrets.Ref, value string) error {
	m[ref.String()] = value
	return nil
}

func (m mapStore) Get(ref secrets.Ref) (string, error) {
	v, ok := m[ref.String()]
	if !ok {
		return "", ragerr.Errorf(ragerr.CodeSecretNotFound, "secret %s not found", ref)
	}
	return v, nil
}

func (m mapStore) Delete(ref secrets.Ref) error {
	delete(m, ref.String())
	return nil
}

func TestResolveConfig(t *testing.T) {
	store := mapStore{
		"keyring://ragd/google-api-key": "AIza-123",
		"keyring://ragd/pg":             "postgres://ragd@db/ragd",
		"keyring://ragd/unrelated":      "never-read",
	}

	v := viper.New()
	v.Set("generator.api_key", "keyring://ragd/google-api-key")
	v.Set("embedding.api_key", "keyring://ragd/missing")
	v.Set("storage.postgres_dsn", "keyring://ragd/pg")
	v.Set("generator.model", "gemini-2.5-flash")
	v.Set("answer.system_prompt", "keyring://ragd/unrelated")

	failed := secrets.ResolveConfig(v, store)

	assert.Equal(t, "AIza-123", v.GetString("generator.api_key"))
	assert.Equal(t, "postgres://ragd@db/ragd", v.GetString("storage.postgres_dsn"))
	assert.Equal(t, "gemini-2.5-flash", v.GetString("generator.model"))
	assert.Equal(t, "keyring://ragd/unrelated", v.GetString("answer.system_prompt"), "only credential keys are resolved")

	require.Len(t, failed, 1)
	assert.Equal(t, "embedding.api_key", failed[0].ConfigKey)
	assert.Equal(t, "keyring://ragd/missing", failed[0].Value)
	assert.True(t, ragerr.HasCode(failed[0].Err, ragerr.CodeSecretNotFound))
	assert.Equal(t, "keyring://ragd/missing", v.GetString("embedding.api_key"))
}

func TestResolveConfig_MalformedRef(t *testing.T) {
	v := viper.New()
	v.Set("generator.api_key", "keyring://ragd/")

	failed := secrets.ResolveConfig(v, mapStore{})
	require.Len(t, failed, 1)
	assert.True(t, ragerr.HasCode(failed[0].Err, ragerr.CodeSecretInvalidInput))
	assert.Equal(t, "keyring://ragd/", v.GetString("generator.api_key"))
}

func TestResolveConfig_NoRefs(t *testing.T) {
	v := viper.New()
	v.Set("generator.api_key", "sk-literal")

	assert.Empty(t, secrets.ResolveConfig(v, mapStore{}))
	assert.Equal(t, "sk-literal", v.GetString("generator.api_key"))
}
