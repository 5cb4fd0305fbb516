// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigil-dev/ragd/internal/secrets"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/stretchr/testify/require"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // key -> value (service is always "ragd")
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Set(ref secrets.Ref, value string) error {
	m.data[ref.Name] = value
	return nil
}

func (m *mockSecretStore) Get(ref secrets.Ref) (string, error) {
	v, ok := m.data[ref.Name]
	if !ok {
		return "", ragerr.Errorf(ragerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(ref secrets.Ref) error {
	if _, ok := m.data[ref.Name]; !ok {
		return ragerr.Errorf(ragerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, ref.Name)
	return nil
}

// useSecretStore swaps secretStoreFactory for the duration of the test.
func useSecretStore(t *testing.T, s *mockSecretStore) {
	t.Helper()
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return s }
	t.Cleanup(func() { secretStoreFactory = old })
}

// chatStub mimics the Chat Completions endpoint, answering by citing the
// first passage in the prompt.
func chatStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body := string(raw)

		citation := ""
		if i := strings.Index(body, "Context passages:"); i >= 0 {
			rest := body[i:]
			start, end := strings.IndexByte(rest, '['), strings.IndexByte(rest, ']')
			if start >= 0 && end > start {
				citation = rest[start : end+1]
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4.1-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "Mars has two moons %s."}
			}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 7, "total_tokens": 47}
		}`, citation)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeTestConfig writes a config using sqlite under a temp dir, the
// hashing embedder and an OpenAI generator pointed at baseURL.
func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	useSecretStore(t, newMockSecretStore())

	dir := t.TempDir()
	cfg := fmt.Sprintf(`storage:
  backend: sqlite
  data_dir: %q
index:
  backend: sqlite
chunker:
  max_tokens: 32
  overlap_tokens: 4
embedding:
  provider: hashing
  dimensions: 64
retrieval:
  top_k: 3
  min_score: 0
generator:
  provider: openai
  model: gpt-4.1-mini
  api_key: test-key-not-real
  base_url: %q
answer:
  max_attempts: 1
reconcile:
  interval: 0s
`, filepath.Join(dir, "data"), baseURL)

	path := filepath.Join(dir, "ragd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

// run executes the root command with cfgPath and returns combined output.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	return runWithInput(t, cfgPath, nil, args...)
}

func runWithInput(t *testing.T, cfgPath string, in io.Reader, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if in != nil {
		root.SetIn(in)
	}

	full := []string{"--env-file", ""}
	if cfgPath != "" {
		full = append(full, "--config", cfgPath)
	}
	root.SetArgs(append(full, args...))

	err := root.Execute()
	return buf.String(), err
}
