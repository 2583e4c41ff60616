package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/praetorian-inc/bgrep/pkg/config"
	"github.com/praetorian-inc/bgrep/pkg/logging"
)

var (
	verbose    bool
	quiet      bool
	logLevel   string
	configPath string
)

const rootLong = `bgrep searches files, directory trees or standard input for a byte pattern.

PATTERN mixes hex bytes, wildcards and quoted text:

   ffeedd??cc        matches 0xff, 0xee, 0xdd, <any byte>, 0xcc
   "foo"             matches 0x66, 0x6f, 0x6f
   "foo"00"bar"      matches "foo", a NUL byte, then "bar"
   "foo"??"bar"      matches "foo", then any byte, then "bar"

Inside quotes a backslash takes the next character literally. Spaces
between hex bytes are ignored.

BYTES arguments accept multiplicative suffixes: c=1, w=2, b=512, kB=1000,
K=1024, MB=1000*1000, M=1024*1024, xM=M, GB, G and so on for T, P, E, Z, Y.
IEC forms such as 4KiB are accepted too.

Exit status is 0 when a match was found, 3 when none was, 2 for an invalid
pattern and 1 for any other error.`

// newRootCmd builds the command tree. Every call resets the flag
// variables to their defaults.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bgrep [flags] PATTERN [PATH...]",
		Short:         "Binary grep: find byte patterns in files and streams",
		Long:          rootLong,
		Args:          cobra.MinimumNArgs(1),
		RunE:          runScan,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	addPersistentFlags(cmd.PersistentFlags())
	addScanFlags(cmd.Flags())

	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(versionCmd)

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w\n%s", err, c.UseLine())
	})
	return cmd
}

func addPersistentFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	fs.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (default from config, else warn)")
	fs.StringVar(&configPath, "config", "", "Path to a YAML configuration file (default $"+config.EnvVar+")")
}

// loadConfig reads the configuration file named by --config or the
// environment.
func loadConfig() (*config.Config, error) {
	return config.Load(config.Path(configPath))
}

// newLogger builds the stderr logger. --verbose and --quiet win over
// --log-level, which wins over the configuration file.
func newLogger(cmd *cobra.Command, cfg *config.Config) (zerolog.Logger, error) {
	level := cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	if _, err := logging.ParseLevel(level); err != nil {
		return zerolog.Nop(), err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Output = cmd.ErrOrStderr()
	lc.NoColor = !colorEnabled(cfg.Color, cmd.ErrOrStderr())
	return logging.New(lc), nil
}
