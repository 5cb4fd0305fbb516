// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps ragd's credentials in the OS keyring and resolves
// the keyring://service/name references configuration holds in their place.
package secrets

import (
	"strings"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Service is the keyring service ragd's own entries live under.
const Service = "ragd"

const scheme = "keyring://"

// Ref names one keyring entry.
type Ref struct {
	Service string
	Name    string
}

// Local returns the ref for name under Service.
func Local(name string) Ref { return Ref{Service: Service, Name: name} }

// APIKeyRef is the entry holding a provider's API key.
func APIKeyRef(provider string) Ref { return Local(provider + "-api-key") }

// String renders the ref in its config form.
func (r Ref) String() string { return scheme + r.Service + "/" + r.Name }

func (r Ref) validate() error {
	if r.Service == "" || strings.Contains(r.Service, "/") {
		return ragerr.Errorf(ragerr.CodeSecretInvalidInput, "invalid keyring service %q", r.Service)
	}
	if r.Name == "" {
		return ragerr.New(ragerr.CodeSecretInvalidInput, "keyring entry name must not be empty")
	}
	return nil
}

// IsRef reports whether a config value is a keyring reference.
func IsRef(value string) bool { return strings.HasPrefix(value, scheme) }

// ParseRef decodes a keyring://service/name value. ok is false for values
// that are not keyring references; err is set for malformed ones. Names
// may contain slashes.
func ParseRef(value string) (ref Ref, ok bool, err error) {
	if !IsRef(value) {
		return Ref{}, false, nil
	}
	service, name, _ := strings.Cut(strings.TrimPrefix(value, scheme), "/")
	ref = Ref{Service: service, Name: name}
	if err := ref.validate(); err != nil {
		return Ref{}, true, ragerr.Wrapf(err, ragerr.CodeSecretInvalidInput,
			"invalid keyring reference %q: expected keyring://service/name", value)
	}
	return ref, true, nil
}

// Store reads and writes secrets. Get reports CodeSecretNotFound for
// missing entries.
type Store interface {
	Set(ref Ref, value string) error
	Get(ref Ref) (string, error)
	Delete(ref Ref) error
}
