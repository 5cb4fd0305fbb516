// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	googleemb "github.com/sigil-dev/ragd/internal/embedding/google"
	openaiemb "github.com/sigil-dev/ragd/internal/embedding/openai"
	"github.com/sigil-dev/ragd/internal/generator"
	anthropicgen "github.com/sigil-dev/ragd/internal/generator/anthropic"
	googlegen "github.com/sigil-dev/ragd/internal/generator/google"
	openaigen "github.com/sigil-dev/ragd/internal/generator/openai"
	"github.com/sigil-dev/ragd/internal/secrets"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// wizardHTTPClient validates API keys. Tests replace it.
var wizardHTTPClient = &http.Client{Timeout: 10 * time.Second}

// wizardValidateURL overrides the provider API root during key validation.
// Tests point it at a stub server.
var wizardValidateURL = ""

type wizardStep int

const (
	stepGenerator   wizardStep = iota // select generator provider
	stepAPIKey                        // enter API key
	stepValidateKey                   // validating key (spinner)
	stepEmbedding                     // select embedder
	stepDone                          // wizard complete
	stepError                         // terminal error
)

// wizardResult holds what the wizard collected.
type wizardResult struct {
	Generator string
	APIKey    string
	Embedding string
}

type (
	keyValidMsg   struct{}
	keyInvalidMsg struct{ err error }
	configDoneMsg struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

var supportedGenerators = []string{"google", "openai", "anthropic"}

// embeddingChoices lists the local hashing embedder plus the generator's
// own provider when it also serves embeddings, so one key covers both.
func embeddingChoices(gen string) []string {
	choices := []string{"hashing"}
	if gen == "google" || gen == "openai" {
		choices = append(choices, gen)
	}
	return choices
}

// wizardModel is the bubbletea model for "ragd init --interactive".
type wizardModel struct {
	step          wizardStep
	generatorIdx  int
	embeddingIdx  int
	apiKeyInput   textinput.Model
	spinner       spinner.Model
	result        wizardResult
	validationErr string
	configPath    string
	force         bool
	secretStore   secrets.Store
	errFinal      error
}

func newWizardModel(store secrets.Store, path string, force bool) wizardModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return wizardModel{
		step:        stepGenerator,
		apiKeyInput: apiKey,
		spinner:     sp,
		secretStore: store,
		configPath:  path,
		force:       force,
	}
}

func (m wizardModel) Init() tea.Cmd {
	return nil
}

func (m wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case keyValidMsg:
		m.step = stepEmbedding
		m.embeddingIdx = 0
		return m, nil

	case keyInvalidMsg:
		m.validationErr = msg.err.Error()
		m.step = stepAPIKey
		m.apiKeyInput.Focus()
		return m, nil

	case configDoneMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	if m.step == stepAPIKey {
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m wizardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepGenerator:
		return m.handleGeneratorKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepEmbedding:
		return m.handleEmbeddingKey(msg)
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	return m, nil
}

func (m wizardModel) handleGeneratorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.generatorIdx > 0 {
			m.generatorIdx--
		}
	case "down", "j":
		if m.generatorIdx < len(supportedGenerators)-1 {
			m.generatorIdx++
		}
	case "enter":
		m.result.Generator = supportedGenerators[m.generatorIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m wizardModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidateKey
		return m, tea.Batch(m.spinner.Tick, validateKeyCmd(m.result.Generator, key))
	case "esc":
		m.step = stepGenerator
		m.validationErr = ""
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m wizardModel) handleEmbeddingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	choices := embeddingChoices(m.result.Generator)
	switch msg.String() {
	case "up", "k":
		if m.embeddingIdx > 0 {
			m.embeddingIdx--
		}
	case "down", "j":
		if m.embeddingIdx < len(choices)-1 {
			m.embeddingIdx++
		}
	case "enter":
		m.result.Embedding = choices[m.embeddingIdx]
		return m, writeWizardConfigCmd(m.result, m.secretStore, m.configPath, m.force)
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m wizardModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  ragd setup  ") + "\n\n")

	switch m.step {
	case stepGenerator:
		b.WriteString(promptStyle.Render("Step 1/2: Choose the answer generator") + "\n\n")
		writeChoices(&b, supportedGenerators, m.generatorIdx)
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+m.result.Generator+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  esc to go back  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + m.result.Generator + " API key…\n")

	case stepEmbedding:
		b.WriteString(promptStyle.Render("Step 2/2: Choose the embedder") + "\n\n")
		writeChoices(&b, embeddingChoices(m.result.Generator), m.embeddingIdx)
		b.WriteString("\n" + dimStyle.Render("hashing runs locally; a hosted embedder reuses the key above"))
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("ragd serve") + " and " + promptStyle.Render("ragd ingest <file>") + " to get started.\n")
		b.WriteString("Run " + promptStyle.Render("ragd doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func writeChoices(b *strings.Builder, choices []string, selected int) {
	for i, c := range choices {
		if i == selected {
			b.WriteString(selectedStyle.Render("  > "+c) + "\n")
		} else {
			b.WriteString(dimStyle.Render("    "+c) + "\n")
		}
	}
}

func validateKeyCmd(provider, key string) tea.Cmd {
	return func() tea.Msg {
		if err := generator.ValidateKey(context.Background(), wizardHTTPClient, provider, key, wizardValidateURL); err != nil {
			return keyInvalidMsg{err: err}
		}
		return keyValidMsg{}
	}
}

func writeWizardConfigCmd(result wizardResult, store secrets.Store, path string, force bool) tea.Cmd {
	return func() tea.Msg {
		written, err := storeKeyAndWriteConfig(result, store, path, force)
		if err != nil {
			return err
		}
		return configDoneMsg{path: written}
	}
}

// GenerateConfigYAML renders the config for a wizard result. Only the
// chosen backends are written; everything else falls back to the defaults
// shown by "ragd config show". The key itself is referenced through the
// keyring, never written in plain text.
func GenerateConfigYAML(result wizardResult) string {
	keyURI := secrets.APIKeyRef(result.Generator).String()

	var sb strings.Builder
	sb.WriteString("# ragd configuration, generated by ragd init\n")
	sb.WriteString("# Unlisted settings use their defaults; see 'ragd config show'.\n\n")

	sb.WriteString("server:\n")
	sb.WriteString("  listen: \"127.0.0.1:8088\"\n\n")

	sb.WriteString("storage:\n")
	sb.WriteString("  backend: sqlite\n")
	sb.WriteString("  data_dir: data\n\n")

	sb.WriteString("index:\n")
	sb.WriteString("  backend: sqlite\n\n")

	sb.WriteString("embedding:\n")
	switch result.Embedding {
	case "google":
		sb.WriteString("  provider: google\n")
		fmt.Fprintf(&sb, "  model: %s\n", googleemb.DefaultModel)
		sb.WriteString("  dimensions: 768\n")
		fmt.Fprintf(&sb, "  api_key: %q\n\n", keyURI)
	case "openai":
		sb.WriteString("  provider: openai\n")
		fmt.Fprintf(&sb, "  model: %s\n", openaiemb.DefaultModel)
		sb.WriteString("  dimensions: 1536\n")
		fmt.Fprintf(&sb, "  api_key: %q\n\n", keyURI)
	default:
		sb.WriteString("  provider: hashing\n")
		sb.WriteString("  model: hashing-v1\n")
		sb.WriteString("  dimensions: 384\n\n")
	}

	sb.WriteString("generator:\n")
	fmt.Fprintf(&sb, "  provider: %s\n", result.Generator)
	fmt.Fprintf(&sb, "  model: %s\n", defaultModelForGenerator(result.Generator))
	fmt.Fprintf(&sb, "  api_key: %q\n\n", keyURI)

	sb.WriteString("guard:\n")
	sb.WriteString("  enabled: true\n")
	sb.WriteString("  document: redact\n")
	sb.WriteString("  passage: redact\n")
	sb.WriteString("  answer: redact\n")

	return sb.String()
}

func defaultModelForGenerator(provider string) string {
	switch provider {
	case "anthropic":
		return anthropicgen.DefaultModel
	case "openai":
		return openaigen.DefaultModel
	default:
		return googlegen.DefaultModel
	}
}

// storeKeyAndWriteConfig saves the API key to the keyring and writes the
// generated config to path. Keys already stored are not rolled back when
// the config write fails; a re-run overwrites them.
func storeKeyAndWriteConfig(result wizardResult, store secrets.Store, path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue,
				"config file %s already exists; use --force to overwrite", path)
		}
	}

	if err := store.Set(secrets.APIKeyRef(result.Generator), result.APIKey); err != nil {
		return "", ragerr.Errorf(ragerr.CodeSecretStoreFailure, "storing %s API key: %w", result.Generator, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateConfigYAML(result)), 0o600); err != nil {
		return "", ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "writing config %s: %w", path, err)
	}
	return path, nil
}

// runWizard drives the interactive setup on a terminal.
func runWizard(in *os.File, out *os.File, store secrets.Store, path string, force bool) error {
	p := tea.NewProgram(newWizardModel(store, path, force), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "init wizard: %w", err)
	}

	fm, ok := final.(wizardModel)
	if !ok {
		return ragerr.New(ragerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}
	return nil
}

// isTerminal reports whether f is a character device.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
