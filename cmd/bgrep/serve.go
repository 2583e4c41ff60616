package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/bgrep/pkg/serve"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as a streaming NDJSON scan server",
		Long: `Run bgrep as a long-lived server that reads scan requests from stdin and
writes one JSON response per line to stdout.

Each request names its own pattern and options. Compiled patterns are
cached between requests. The server exits when stdin closes, a "close"
request arrives or the process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	srv := serve.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	err = srv.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		// interrupted
		return nil
	}
	return err
}
