package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/bgrep/pkg/store"
)

var (
	mergeOutput string
)

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <source1.db> <source2.db> [source3.db...]",
		Short: "Merge multiple bgrep datastores",
		Long: `Merge multiple bgrep datastores into a single output datastore.

This is useful for combining results from scans run on different machines
or over different targets.

Records already present are kept: a source scanned in more than one input
keeps the first scan record, and a match at the same source and offset is
stored once.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runMerge,
	}
	cmd.Flags().StringVarP(&mergeOutput, "output", "o", "merged.db", "Output datastore path")
	return cmd
}

func runMerge(cmd *cobra.Command, args []string) error {
	stats, err := store.Merge(store.MergeConfig{
		SourcePaths: args,
		DestPath:    mergeOutput,
	})
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merge complete:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Datastores processed: %d\n", stats.SourcesProcessed)
	fmt.Fprintf(cmd.OutOrStdout(), "  Scans merged: %d\n", stats.ScansMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "  Matches merged: %d\n", stats.MatchesMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", mergeOutput)

	return nil
}
