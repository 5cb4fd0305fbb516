// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/sigil-dev/ragd/internal/config"
	"github.com/sigil-dev/ragd/internal/secrets"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root ragd command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragd",
		Short: "ragd: retrieval-augmented generation backend",
		Long: "ragd ingests documents into a vector index and answers questions from them " +
			"with an LLM, citing the passages it used.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			return setupLogging(cmd)
		},
	}

	// Global flags; initViper maps them to viper keys.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "directory for sqlite data files")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before configuration, if present")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newIngestCmd(),
		newQueryCmd(),
		newRetrieveCmd(),
		newDocumentsCmd(),
		newReconcileCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newSecretCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	viper.Reset()
	v := viper.GetViper()

	if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "loading %s: %w", envFile, err)
		}
	}

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted on purpose: with it, Viper also tries the
		// bare name "ragd", which collides with the binary in the project root.
		v.SetConfigName("ragd")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ragd")
		v.AddConfigPath("/etc/ragd")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			// No config found anywhere: bootstrap a default to ~/.config/ragd/.
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("storage.data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}
	if err := v.BindPFlag("log_format", cmd.Root().PersistentFlags().Lookup("log-format")); err != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "binding log-format flag: %w", err)
	}

	for _, u := range secrets.ResolveConfig(v, secretStoreFactory()) {
		slog.Warn("keyring reference not resolved, keeping it as configured",
			"config_key", u.ConfigKey, "error", u.Err)
	}
	return nil
}

func setupLogging(cmd *cobra.Command) error {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if viper.GetBool("verbose") {
		opts.Level = slog.LevelDebug
	}

	var h slog.Handler
	switch format := viper.GetString("log_format"); format {
	case "", "text":
		h = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	case "json":
		h = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	default:
		return ragerr.Errorf(ragerr.CodeCLIInputInvalid, "unknown log format %q (want text or json)", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// loadConfig decodes and validates the configuration initViper assembled.
func loadConfig() (*config.Config, error) {
	if path := viper.ConfigFileUsed(); path != "" {
		config.WarnInsecurePermissions(path)
	}
	return config.FromViper(viper.GetViper())
}
