// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair drift between the vector index and the metadata store",
		Long: "Roll back stale pending ingests, prune vectors with no committed chunk, " +
			"and re-embed chunks missing from the index.",
		Args: cobra.NoArgs,
		RunE: runReconcile,
	}
	cmd.Flags().Bool("json", false, "print the report as JSON")
	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	app, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	report, err := app.Ingest.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, report)
	}
	_, _ = fmt.Fprintf(out, "Checked %d documents: pruned %d, re-embedded %d, rolled back %d\n",
		report.Documents, report.Pruned, report.Reembedded, report.RolledBack)
	for _, e := range report.Errors {
		_, _ = fmt.Fprintf(out, "  error: %s\n", e)
	}
	return nil
}
