// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"github.com/spf13/viper"
)

// ConfigKeys are the settings that may hold a keyring reference.
var ConfigKeys = []string{
	"generator.api_key",
	"embedding.api_key",
	"storage.postgres_dsn",
}

// Unresolved is a reference ResolveConfig could not read.
type Unresolved struct {
	ConfigKey string
	Value     string
	Err       error
}

// ResolveConfig replaces keyring references held by ConfigKeys with the
// stored secrets. Failed references stay in place, so the backend that
// consumes the value rejects it when opened, and are returned.
func ResolveConfig(v *viper.Viper, store Store) []Unresolved {
	var failed []Unresolved
	for _, key := range ConfigKeys {
		raw := v.GetString(key)
		ref, ok, err := ParseRef(raw)
		if !ok {
			continue
		}
		if err == nil {
			var secret string
			if secret, err = store.Get(ref); err == nil {
				v.Set(key, secret)
				continue
			}
		}
		failed = append(failed, Unresolved{ConfigKey: key, Value: raw, Err: err})
	}
	return failed
}
