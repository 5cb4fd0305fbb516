// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const redacted = "[redacted]"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the merged configuration with secrets redacted",
			Args:  cobra.NoArgs,
			RunE:  runConfigShow,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file in use",
			Args:  cobra.NoArgs,
			RunE:  runConfigPath,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the configuration and exit",
			Args:  cobra.NoArgs,
			RunE:  runConfigValidate,
		},
	)

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	settings := viper.AllSettings()
	redactSecrets(settings)

	out, err := yaml.Marshal(settings)
	if err != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "encoding config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = "(none, using defaults)"
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
	return err
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
	return err
}

// redactSecrets blanks credential-bearing values in a nested settings map.
func redactSecrets(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			redactSecrets(val)
		case string:
			if val != "" && isSecretKey(k) {
				m[k] = redacted
			}
		}
	}
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "dsn") ||
		strings.Contains(key, "password") || strings.Contains(key, "token")
}
