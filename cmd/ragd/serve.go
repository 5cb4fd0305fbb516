// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: "Load configuration, open storage, the index, the embedder and the generator, " +
			"then serve the HTTP API until interrupted. A background reconciler repairs drift " +
			"between the index and the metadata store.",
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if err := app.WithGenerator(ctx); err != nil {
		return err
	}
	srv, err := app.Server()
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	reconcileCtx, cancelReconcile := context.WithCancel(ctx)
	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		app.Ingest.Run(reconcileCtx, cfg.Reconcile.Interval)
	}()
	defer func() {
		cancelReconcile()
		<-reconcileDone
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ragd %s listening on %s\n", version, cfg.Server.Listen)
	slog.Info("serving",
		"listen", cfg.Server.Listen,
		"storage", cfg.Storage.Backend,
		"index", cfg.Index.Backend,
		"embedding", cfg.Embedding.Provider,
		"generator", cfg.Generator.Provider,
	)
	return srv.Start(ctx)
}
