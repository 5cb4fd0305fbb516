// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"

	"github.com/sigil-dev/ragd/internal/config"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Long: `Write the default configuration to ~/.config/ragd/ragd.yaml (or --path).

With --interactive, a setup wizard picks the generator and embedder,
validates the API key and stores it in the OS keyring instead.

API keys should not be written in plain text. Store them in the OS keyring
with "ragd secret set <name>" and reference them as keyring://ragd/<name>,
or export them as RAGD_GENERATOR_API_KEY / RAGD_EMBEDDING_API_KEY.`,
		Args: cobra.NoArgs,
		// Skip config discovery: it would bootstrap the very file init writes.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd)
		},
		RunE: runInit,
	}

	cmd.Flags().String("path", "", "where to write the config (default: ~/.config/ragd/ragd.yaml)")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	cmd.Flags().BoolP("interactive", "i", false, "run the setup wizard (requires a terminal)")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")

	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		in, inOK := cmd.InOrStdin().(*os.File)
		out, outOK := cmd.OutOrStdout().(*os.File)
		if !inOK || !outOK || !isTerminal(in) {
			return ragerr.New(ragerr.CodeCLIInputInvalid,
				"ragd init --interactive requires a terminal; run 'ragd init' and edit the file instead")
		}
		if !force {
			if _, err := os.Stat(path); err == nil {
				return ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue,
					"config file %s already exists; use --force to overwrite", path)
			}
		}
		return runWizard(in, out, secretStoreFactory(), path, force)
	}

	if err := config.WriteDefault(path, force); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Run 'ragd doctor' to verify your setup.")
	return nil
}
