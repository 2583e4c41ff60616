package main

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/praetorian-inc/bgrep/pkg/bytesize"
	"github.com/praetorian-inc/bgrep/pkg/config"
	"github.com/praetorian-inc/bgrep/pkg/enum"
	"github.com/praetorian-inc/bgrep/pkg/matcher"
	"github.com/praetorian-inc/bgrep/pkg/pattern"
	"github.com/praetorian-inc/bgrep/pkg/scanner"
	"github.com/praetorian-inc/bgrep/pkg/store"
)

var (
	scanFirstOnly      bool
	scanCount          bool
	scanSkip           bytesize.Value
	scanBefore         bytesize.Value
	scanAfter          bytesize.Value
	scanContext        bytesize.Value
	scanFormat         string
	scanColor          string
	scanJobs           int
	scanBufferSize     bytesize.Value
	scanDatastore      string
	scanIncludeHidden  bool
	scanGitignore      bool
	scanMaxFileSize    bytesize.Value
	scanFollowSymlinks bool
	scanArchives       bool
	scanGitRevision    string
	scanAzureContainer string
	scanAzurePrefix    string
)

func addScanFlags(fs *pflag.FlagSet) {
	scanSkip, scanBefore, scanAfter, scanContext = 0, 0, 0, 0
	scanBufferSize, scanMaxFileSize = 0, 0

	fs.BoolVarP(&scanFirstOnly, "first", "f", false, "Stop scanning after the first match")
	fs.BoolVarP(&scanCount, "count", "c", false, "Print a match count for each source instead of offsets")
	fs.VarP(&scanSkip, "skip", "s", "Skip forward to offset BYTES before searching")
	fs.VarP(&scanBefore, "before", "B", "Print BYTES bytes of context before each match")
	fs.VarP(&scanAfter, "after", "A", "Print BYTES bytes of context after each match")
	fs.VarP(&scanContext, "context", "C", "Print BYTES bytes of context before and after each match")

	fs.StringVar(&scanFormat, "format", config.FormatHuman, "Output format: human, json, sarif")
	fs.StringVar(&scanColor, "color", config.ColorAuto, "Color output: auto, always, never")
	fs.IntVarP(&scanJobs, "jobs", "j", 1, "Sources scanned concurrently (0 = one per CPU)")
	fs.Var(&scanBufferSize, "buffer-size", "Read buffer size in BYTES (default 64K)")
	fs.StringVar(&scanDatastore, "datastore", "", "Also record results in this SQLite datastore")

	fs.BoolVar(&scanIncludeHidden, "include-hidden", true, "Include hidden files and directories when walking")
	fs.BoolVar(&scanGitignore, "gitignore", false, "Skip entries matched by the walked root's .gitignore")
	fs.Var(&scanMaxFileSize, "max-file-size", "Skip walked files larger than BYTES (0 = no limit)")
	fs.BoolVar(&scanFollowSymlinks, "follow-symlinks", false, "Scan symlinked files found while walking")
	fs.BoolVar(&scanArchives, "archives", false, "Scan the members of .zip and .7z files instead of the files")

	fs.StringVar(&scanGitRevision, "git", "", "Scan the tree of revision REF in each PATH (a git repository, default .)")
	fs.StringVar(&scanAzureContainer, "azure-container", "", "Scan the blobs of an Azure container URL (SAS or public)")
	fs.StringVar(&scanAzurePrefix, "azure-prefix", "", "Only scan Azure blobs whose name starts with this prefix")
}

// applyScanFlags overrides cfg with the flags set on the command line.
func applyScanFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("format") {
		cfg.Format = scanFormat
	}
	if fs.Changed("color") {
		cfg.Color = scanColor
	}
	if fs.Changed("jobs") {
		cfg.Jobs = scanJobs
	}
	if fs.Changed("buffer-size") {
		cfg.BufferSize = scanBufferSize
	}
	if fs.Changed("datastore") {
		cfg.Datastore = scanDatastore
	}
	if fs.Changed("include-hidden") {
		cfg.IncludeHidden = scanIncludeHidden
	}
	if fs.Changed("gitignore") {
		cfg.Gitignore = scanGitignore
	}
	if fs.Changed("max-file-size") {
		cfg.MaxFileSize = scanMaxFileSize
	}
	if fs.Changed("follow-symlinks") {
		cfg.FollowSymlinks = scanFollowSymlinks
	}
	if fs.Changed("archives") {
		cfg.Archives = scanArchives
	}
	return cfg.Validate()
}

// matcherOptions builds the per-run scan options. -C sets both context
// widths; -A and -B given alongside it take precedence for their side.
func matcherOptions(fs *pflag.FlagSet, cfg *config.Config) matcher.Options {
	opts := matcher.Options{
		FirstOnly:  scanFirstOnly,
		CountOnly:  scanCount,
		Skip:       scanSkip.Uint64(),
		BufferSize: int(cfg.BufferSize.Uint64()),
	}
	if fs.Changed("context") {
		opts.Before = scanContext.Uint64()
		opts.After = scanContext.Uint64()
	}
	if fs.Changed("before") {
		opts.Before = scanBefore.Uint64()
	}
	if fs.Changed("after") {
		opts.After = scanAfter.Uint64()
	}
	return opts
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyScanFlags(cmd.Flags(), cfg); err != nil {
		return err
	}

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	p, err := pattern.Compile(args[0])
	if err != nil {
		return &exitCodeError{code: exitPatternError, err: err}
	}

	out, err := newSink(cfg.Format, cmd.OutOrStdout(), sinkOptions{
		count:   scanCount,
		color:   colorEnabled(cfg.Color, cmd.OutOrStdout()),
		pattern: p.String(),
	})
	if err != nil {
		return err
	}

	var st store.Store
	if cfg.Datastore != "" {
		st, err = store.New(store.Config{Path: cfg.Datastore})
		if err != nil {
			return fmt.Errorf("opening datastore: %w", err)
		}
		defer st.Close()
	}

	core, err := scanner.NewCore(scanner.Config{
		Pattern: p,
		Options: matcherOptions(cmd.Flags(), cfg),
		Sink:    out,
		Store:   st,
		Jobs:    cfg.Workers(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating scanner: %w", err)
	}

	enumerator, err := createEnumerator(cmd, args[1:], cfg, enum.Config{
		IncludeHidden:  cfg.IncludeHidden,
		Gitignore:      cfg.Gitignore,
		MaxFileSize:    clampInt64(cfg.MaxFileSize.Uint64()),
		FollowSymlinks: cfg.FollowSymlinks,
		OnError:        core.EntryError,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating enumerator: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	summary, runErr := core.Run(ctx, enumerator)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("writing output: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	logSummary(logger, summary.Sources, summary.Matches, summary.Errors)
	if !summary.Matched {
		return errNoMatch
	}
	return nil
}

// createEnumerator picks the sources to scan: an Azure container, git
// revisions, the given paths, or standard input when none of those is set.
func createEnumerator(cmd *cobra.Command, paths []string, cfg *config.Config, ec enum.Config) (enum.Enumerator, error) {
	var all enum.Multi

	if scanAzureContainer != "" {
		az := enum.NewAzureEnumerator(scanAzureContainer, ec)
		az.Prefix = scanAzurePrefix
		all = append(all, az)
	}

	switch {
	case scanGitRevision != "":
		if len(paths) == 0 {
			paths = []string{"."}
		}
		for _, repo := range paths {
			g := enum.NewGitEnumerator(repo, ec)
			g.Revision = scanGitRevision
			all = append(all, g)
		}
	case len(paths) > 0:
		var e enum.Enumerator = enum.NewPathEnumerator(paths, ec)
		if cfg.Archives {
			e = enum.NewArchiveEnumerator(e, ec)
		}
		all = append(all, e)
	case len(all) == 0:
		all = append(all, enum.NewStdinEnumerator(cmd.InOrStdin()))
	}

	if len(all) == 1 {
		return all[0], nil
	}
	return all, nil
}

func logSummary(logger zerolog.Logger, sources, matches, errs int) {
	logger.Info().
		Int("sources", sources).
		Int("matches", matches).
		Int("errors", errs).
		Msg("scan complete")
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
