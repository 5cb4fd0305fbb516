// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"errors"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/zalando/go-keyring"
)

// KeyringStore keeps secrets in the OS keyring: Keychain on macOS,
// secret-service over D-Bus on Linux, Credential Manager on Windows.
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore { return &KeyringStore{} }

var _ Store = (*KeyringStore)(nil)

func (*KeyringStore) Set(ref Ref, value string) error {
	if err := ref.validate(); err != nil {
		return err
	}
	if value == "" {
		return ragerr.Errorf(ragerr.CodeSecretInvalidInput, "secret %s: value must not be empty", ref)
	}
	return keyringErr("storing", ref, keyring.Set(ref.Service, ref.Name, value))
}

func (*KeyringStore) Get(ref Ref) (string, error) {
	if err := ref.validate(); err != nil {
		return "", err
	}
	val, err := keyring.Get(ref.Service, ref.Name)
	if err != nil {
		return "", keyringErr("reading", ref, err)
	}
	return val, nil
}

func (*KeyringStore) Delete(ref Ref) error {
	if err := ref.validate(); err != nil {
		return err
	}
	return keyringErr("deleting", ref, keyring.Delete(ref.Service, ref.Name))
}

func keyringErr(op string, ref Ref, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return ragerr.Errorf(ragerr.CodeSecretNotFound, "secret %s not found", ref)
	default:
		return ragerr.Wrapf(err, ragerr.CodeSecretStoreFailure, "%s secret %s", op, ref)
	}
}
