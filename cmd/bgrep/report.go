package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/bgrep/pkg/config"
	"github.com/praetorian-inc/bgrep/pkg/store"
)

var (
	reportDatastore string
	reportFormat    string
	reportColor     string
	reportCount     bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the results recorded in a datastore",
		Long: `Read the scans and matches recorded with --datastore and print them in
the same formats a scan uses. Sources are listed in the order they were first
scanned; matches within a source in offset order.`,
		Args: cobra.NoArgs,
		RunE: runReport,
	}
	cmd.Flags().StringVar(&reportDatastore, "datastore", "bgrep.db", "Path to the datastore file")
	cmd.Flags().StringVar(&reportFormat, "format", config.FormatHuman, "Output format: human, json, sarif")
	cmd.Flags().StringVar(&reportColor, "color", config.ColorAuto, "Color output: auto, always, never")
	cmd.Flags().BoolVarP(&reportCount, "count", "c", false, "Print a match count for each source instead of offsets")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportDatastore == store.MemoryPath {
		return fmt.Errorf("cannot report from in-memory store")
	}
	if _, err := os.Stat(reportDatastore); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("datastore not found: %s", reportDatastore)
		}
		return fmt.Errorf("datastore %s: %w", reportDatastore, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("color") {
		cfg.Color = reportColor
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	s, err := store.New(store.Config{Path: reportDatastore})
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer s.Close()

	scans, err := s.GetScans()
	if err != nil {
		return fmt.Errorf("retrieving scans: %w", err)
	}

	out, err := newSink(reportFormat, cmd.OutOrStdout(), sinkOptions{
		count: reportCount,
		color: colorEnabled(cfg.Color, cmd.OutOrStdout()),
	})
	if err != nil {
		return err
	}

	total := 0
	failed := 0
	for _, scan := range scans {
		if scan.Err != nil {
			failed++
			logger.Warn().Err(scan.Err).Str("source", scan.Source).Msg("source was not fully scanned")
		}
		if !reportCount {
			matches, err := s.GetMatches(scan.Source)
			if err != nil {
				return fmt.Errorf("retrieving matches of %s: %w", scan.Source, err)
			}
			for _, m := range matches {
				if err := out.Match(m); err != nil {
					return err
				}
			}
		}
		if err := out.Done(scan); err != nil {
			return err
		}
		total += scan.Count
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	logSummary(logger, len(scans), total, failed)
	return nil
}
