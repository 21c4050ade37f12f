package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/walfp"
	"github.com/bft-labs/walfp/internal/cliconfig"
	"github.com/bft-labs/walfp/pkg/log"
	"github.com/bft-labs/walfp/pkg/wal"
)

const helpDescription = `
Extract full-page images from PostgreSQL WAL segments.

Every full-page image in the selected records is rebuilt into a complete
8 KiB page (hole zeroed, pd_lsn stamped with the end of its record) and
written to its own file:

  tbs_<spc>_db_<db>_rel_<rel>_fork_<fork>_blk_<blk>_lsn_<hi>_<lo>.dump

Highlights:
  - Reads pglz, LZ4 and zstd compressed images.
  - Filters by transaction id (-x) and relation (-r, repeatable).
  - Follows a WAL that is still being written (-f).
  - Configure via file ($HOME/.walfp/config.toml or YAML), WALFP_* env, or flags.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  walfp -r 16384 -d /tmp/pages pg_wal/000000010000000000000003
  walfp -s 0/3000060 -e 0/3FFFFF8 -x 734 pg_wal
  walfp --test --check --log-format json pg_wal/000000010000000000000003
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := log.NewConsoleLogger(os.Stderr)

	root := &cobra.Command{
		Use:           "walfp [flags] <wal-segment-or-directory>",
		Short:         "Extract full-page images from PostgreSQL WAL segments",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s (wal %s, log %s) %s/%s", getVersion(), wal.Version, log.Version, runtime.GOOS, runtime.GOARCH),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.WALPath = args[0]

			// Load config file first (default $HOME/.walfp/config.toml), then apply flag overrides
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			} else if cfgPath != "" {
				return fmt.Errorf("config file %s not found", cfgPath)
			}

			// Environment overrides the file; explicit flags override both.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			l, err := cliconfig.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			logger = l
			logger.Debug().Interface("config", cfg).Msg("configuration")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := walfp.Run(ctx, cfg, walfp.WithLogger(log.NewZerologAdapterWithLogger(logger)))
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("received signal, stopping")
				err = nil
			}
			if err != nil {
				return err
			}
			if report.ImagesFailed > 0 {
				logger.Warn().Int("images_failed", report.ImagesFailed).Msg("some images could not be restored")
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.SortFlags = false
	flags.StringVarP(&cfg.StartText, "start", "s", "", "start reading at WAL location RECPTR (X/X)")
	flags.StringVarP(&cfg.EndText, "end", "e", "", "stop reading at WAL location RECPTR (X/X)")
	flags.Int64VarP(&cfg.XID, "xid", "x", cfg.XID, "only dump images of records with transaction id XID")
	flags.UintSliceVarP(&cfg.Relations, "rel", "r", nil, "only dump images of relation RELNUMBER (repeatable)")
	flags.StringVarP(&cfg.Dest, "dest", "d", "", "directory for page files (default: system temp directory)")
	flags.BoolVarP(&cfg.Check, "check", "c", false, "compute and store the page checksum")
	flags.BoolVarP(&cfg.DryRun, "test", "t", false, "restore images but do not write them")
	flags.BoolVarP(&cfg.Follow, "follow", "f", false, "keep waiting for new WAL after reaching the end")
	flags.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "initial poll interval in follow mode")
	flags.DurationVar(&cfg.MaxPollInterval, "max-poll", cfg.MaxPollInterval, "maximum poll interval in follow mode")
	flags.StringVar(&cfg.OnMalformed, "on-malformed", cfg.OnMalformed, "what an unreadable record does: stop or fail")
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.walfp/config.toml)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: auto, console or json")

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("walfp")
		os.Exit(1)
	}
}
