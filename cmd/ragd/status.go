// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/sigil-dev/ragd/internal/server"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  "Query a running server's status endpoint and display index size and generator health.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "", "server address (default: server.listen from config)")

	return cmd
}

// statusAddress returns the --address flag or the configured listen address.
func statusAddress(cmd *cobra.Command) string {
	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		return addr
	}
	return viper.GetString("server.listen")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr := statusAddress(cmd)
	out := cmd.OutOrStdout()

	var body server.StatusBody
	if err := newServerClient(addr).getJSON("/api/v1/status", &body); err != nil {
		if ragerr.HasCode(err, ragerr.CodeCLIServerDown) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, body.Status)
	_, _ = fmt.Fprintf(out, "  index:     %d vectors, %d dims, %s\n", body.IndexSize, body.Dimensions, body.Metric)
	if g := body.Generator; g != nil {
		state := "available"
		if !g.Available {
			state = "cooling down"
		}
		_, _ = fmt.Fprintf(out, "  generator: %s (%s)\n", g.Backend, state)
	}
	return nil
}
