// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/sigil-dev/ragd/internal/server"
	"github.com/sigil-dev/ragd/internal/store"
	"github.com/spf13/cobra"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List, inspect and delete ingested documents",
	}

	cmd.AddCommand(
		newDocumentsListCmd(),
		newDocumentsShowCmd(),
		newDocumentsDeleteCmd(),
	)

	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List committed documents",
		Args:  cobra.NoArgs,
		RunE:  runDocumentsList,
	}
	cmd.Flags().Int("limit", 100, "maximum documents to list")
	cmd.Flags().Int("offset", 0, "documents to skip")
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func newDocumentsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE:  runDocumentsShow,
	}
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

func newDocumentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents and their vectors",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDocumentsDelete,
	}
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	asJSON, _ := cmd.Flags().GetBool("json")

	app, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	docs, err := app.Store.ListDocuments(cmd.Context(), store.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		views := make([]server.DocumentSummary, 0, len(docs))
		for _, d := range docs {
			views = append(views, server.NewDocumentSummary(d))
		}
		return writeJSON(out, views)
	}
	if len(docs) == 0 {
		_, _ = fmt.Fprintln(out, "No documents.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tCHUNKS\tINGESTED")
	for _, d := range docs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			d.ID, d.Title, d.ContentType, d.ChunkCount, d.IngestedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runDocumentsShow(cmd *cobra.Command, args []string) error {
	id := args[0]
	asJSON, _ := cmd.Flags().GetBool("json")

	app, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	doc, err := app.Store.GetDocument(cmd.Context(), id)
	if err != nil {
		return err
	}
	chunks, err := app.Store.ListChunks(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, server.NewDocumentDetail(doc, chunks, true))
	}

	_, _ = fmt.Fprintf(out, "ID:       %s\n", doc.ID)
	if doc.Title != "" {
		_, _ = fmt.Fprintf(out, "Title:    %s\n", doc.Title)
	}
	if doc.SourceURI != "" {
		_, _ = fmt.Fprintf(out, "Source:   %s\n", doc.SourceURI)
	}
	_, _ = fmt.Fprintf(out, "Type:     %s\n", doc.ContentType)
	_, _ = fmt.Fprintf(out, "Hash:     %s\n", doc.ContentHash)
	_, _ = fmt.Fprintf(out, "Ingested: %s\n", doc.IngestedAt.Format(time.RFC3339))
	for k, v := range doc.Metadata {
		_, _ = fmt.Fprintf(out, "Meta:     %s=%s\n", k, v)
	}
	_, _ = fmt.Fprintf(out, "Chunks:   %d\n", len(chunks))
	for _, c := range chunks {
		_, _ = fmt.Fprintf(out, "  %s [%d:%d] %s\n", c.ID, c.StartOffset, c.EndOffset, snippet(c.Text, 80))
	}
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	app, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	for _, id := range args {
		if err := app.Ingest.Delete(cmd.Context(), id); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted document: %s\n", id)
	}
	return nil
}
