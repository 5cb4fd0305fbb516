// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/sigil-dev/ragd/internal/answer"
	"github.com/sigil-dev/ragd/internal/index"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the indexed documents",
		Long:  "Retrieve the most relevant passages, ask the configured generator, and print the answer with its citations.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
	addSearchFlags(cmd)
	return cmd
}

func newRetrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Show the passages most relevant to a query",
		Long:  "Run retrieval only, without calling the generator. Useful for tuning chunking and min_score.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRetrieve,
	}
	addSearchFlags(cmd)
	return cmd
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("k", "k", 0, "passages to retrieve (default: retrieval.top_k)")
	cmd.Flags().StringSlice("doc", nil, "restrict retrieval to these document ids, repeatable")
	cmd.Flags().Bool("json", false, "print the result as JSON")
}

type searchFlags struct {
	text   string
	k      int
	filter *index.Filter
	json   bool
}

func readSearchFlags(cmd *cobra.Command, args []string) (searchFlags, error) {
	f := searchFlags{text: strings.TrimSpace(strings.Join(args, " "))}
	if f.text == "" {
		return f, ragerr.New(ragerr.CodeCLIInputInvalid, "query must not be empty")
	}
	f.k, _ = cmd.Flags().GetInt("k")
	if f.k < 0 {
		return f, ragerr.Errorf(ragerr.CodeCLIInputInvalid, "-k must not be negative, got %d", f.k)
	}
	if docs, _ := cmd.Flags().GetStringSlice("doc"); len(docs) > 0 {
		f.filter = &index.Filter{DocumentIDs: docs}
	}
	f.json, _ = cmd.Flags().GetBool("json")
	return f, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	f, err := readSearchFlags(cmd, args)
	if err != nil {
		return err
	}

	app, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ans, err := app.Composer.Answer(cmd.Context(), answer.Query{Text: f.text, K: f.k, Filter: f.filter})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.json {
		return writeJSON(out, ans)
	}

	_, _ = fmt.Fprintln(out, ans.Text)
	if len(ans.Citations) == 0 {
		if !ans.Grounded {
			_, _ = fmt.Fprintln(out, "\n(no supporting passages cited)")
		}
		return nil
	}
	_, _ = fmt.Fprintln(out, "\nSources:")
	for _, c := range ans.Citations {
		_, _ = fmt.Fprintf(out, "  [%s] %s (score %.3f)\n", c.ChunkID, c.DocumentID, c.Score)
	}
	return nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	f, err := readSearchFlags(cmd, args)
	if err != nil {
		return err
	}

	app, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	hits, err := app.Retriever.Retrieve(cmd.Context(), f.text, f.k, f.filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.json {
		return writeJSON(out, hits)
	}
	if len(hits) == 0 {
		_, _ = fmt.Fprintln(out, "No matching passages.")
		return nil
	}
	for i, h := range hits {
		_, _ = fmt.Fprintf(out, "%d. [%s] score %.3f\n", i+1, h.ChunkID, h.Score)
		_, _ = fmt.Fprintf(out, "   %s\n", snippet(h.Text, 200))
	}
	return nil
}

// snippet collapses whitespace and truncates text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
