package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fable/internal/config"
	"fable/internal/runner"
)

type runFlags struct {
	output        string
	workers       int
	batchSize     int
	noProgress    bool
	skipPreflight bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <data_dir>",
		Short: "Label every pending image under data_dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := applyRunFlags(*base, flags, ctx.outputDirOverride() != "")
			if err != nil {
				return err
			}
			dataDir, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve data directory: %w", err)
			}

			logger, closeLog, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			result, err := runner.Run(cmd.Context(), cfg, logger, runner.Options{
				DataDir:        dataDir,
				NoProgress:     flags.noProgress,
				SkipPreflight:  flags.skipPreflight,
				ProgressWriter: cmd.ErrOrStderr(),
			})
			if result.RunID != "" {
				printRunSummary(cmd.OutOrStdout(), result)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "CSV output path (default <output_dir>/out.csv)")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Concurrent labeling workers (also the default batch size)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Items dispatched per batch")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Skip directory and model checks")
	return cmd
}

// applyRunFlags returns a copy of cfg with command-line overrides applied.
// Without an explicit --output-dir the progress database follows the CSV.
func applyRunFlags(cfg config.Config, flags runFlags, outputDirSet bool) (*config.Config, error) {
	if out := strings.TrimSpace(flags.output); out != "" {
		expanded, err := config.ExpandPath(out)
		if err != nil {
			return nil, fmt.Errorf("resolve --output: %w", err)
		}
		cfg.Paths.OutputFile = expanded
		if !outputDirSet {
			cfg.Paths.OutputDir = filepath.Dir(expanded)
		}
	}
	if flags.workers != 0 {
		cfg.Workers.Count = flags.workers
		cfg.Workers.BatchSize = 0
	}
	if flags.batchSize != 0 {
		cfg.Workers.BatchSize = flags.batchSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func printRunSummary(out io.Writer, result runner.Result) {
	s := result.Summary
	fmt.Fprintf(out, "Discovered %s images (%s new, %s already settled)\n",
		humanize.Comma(int64(result.Discovered)), humanize.Comma(s.Inserted), humanize.Comma(int64(s.AlreadyComplete)))
	fmt.Fprintf(out, "Labeled %s, failed %s, retried %s in %s batches\n",
		humanize.Comma(int64(s.Succeeded)), humanize.Comma(int64(s.Failed)),
		humanize.Comma(int64(s.Retried)), humanize.Comma(int64(s.Batches)))
	if s.Interrupted > 0 {
		fmt.Fprintf(out, "Interrupted %s items; run again to resume\n", humanize.Comma(int64(s.Interrupted)))
	}
	fmt.Fprintf(out, "Wrote %s rows to %s in %s\n",
		humanize.Comma(int64(s.Records)), result.OutputPath, s.Duration.Round(time.Millisecond))
}
