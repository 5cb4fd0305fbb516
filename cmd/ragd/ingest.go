// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigil-dev/ragd/internal/ingest"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>... | -",
		Short: "Ingest documents into the index",
		Long: "Parse, chunk, embed and index one or more files, or stdin when the only argument is \"-\".\n" +
			"Re-ingesting a file under the same id replaces the previous version; unchanged content is skipped.",
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().String("id", "", "document id (single input only; default: the file path, or generated for stdin)")
	cmd.Flags().String("title", "", "document title (single input only)")
	cmd.Flags().String("content-type", "", "content type, detected from the file name and content when empty")
	cmd.Flags().StringSlice("meta", nil, "metadata key=value pairs, repeatable")
	cmd.Flags().Bool("json", false, "print results as JSON")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	title, _ := cmd.Flags().GetString("title")
	contentType, _ := cmd.Flags().GetString("content-type")
	metaPairs, _ := cmd.Flags().GetStringSlice("meta")
	asJSON, _ := cmd.Flags().GetBool("json")

	if len(args) > 1 && (id != "" || title != "") {
		return ragerr.New(ragerr.CodeCLIInputInvalid, "--id and --title apply to a single input")
	}
	meta, err := parseMetadata(metaPairs)
	if err != nil {
		return err
	}

	app, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	out := cmd.OutOrStdout()
	results := make([]*ingest.Result, 0, len(args))
	for _, arg := range args {
		req, err := readIngestInput(cmd, arg)
		if err != nil {
			return err
		}
		if id != "" {
			req.DocumentID = id
		}
		req.Title = title
		req.ContentType = contentType
		req.Metadata = meta

		res, err := app.Ingest.Ingest(cmd.Context(), req)
		if err != nil {
			return ragerr.Wrapf(err, ragerr.CodeCLIInputInvalid, "ingesting %s", arg)
		}
		results = append(results, res)
		if asJSON {
			continue
		}
		switch {
		case res.Unchanged:
			_, _ = fmt.Fprintf(out, "%s: unchanged\n", res.DocumentID)
		case res.Replaced:
			_, _ = fmt.Fprintf(out, "%s: replaced (%d chunks)\n", res.DocumentID, res.Chunks)
		default:
			_, _ = fmt.Fprintf(out, "%s: ingested (%d chunks)\n", res.DocumentID, res.Chunks)
		}
	}

	if asJSON {
		return writeJSON(out, results)
	}
	return nil
}

// readIngestInput reads a file, or stdin for "-". Files default to their
// cleaned path as document id so re-ingesting replaces the earlier version.
func readIngestInput(cmd *cobra.Command, arg string) (ingest.Request, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return ingest.Request{}, ragerr.Errorf(ragerr.CodeCLIInputInvalid, "reading stdin: %w", err)
		}
		return ingest.Request{Content: data}, nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return ingest.Request{}, ragerr.Errorf(ragerr.CodeCLIInputInvalid, "reading %s: %w", arg, err)
	}
	path := filepath.Clean(arg)
	return ingest.Request{
		DocumentID: path,
		SourceURI:  path,
		Content:    data,
	}, nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, ragerr.Errorf(ragerr.CodeCLIInputInvalid, "metadata %q must be key=value", p)
		}
		meta[strings.TrimSpace(k)] = v
	}
	return meta, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
