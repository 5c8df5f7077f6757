package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"fable/internal/config"
	"fable/internal/preflight"
	"fable/internal/queue"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health [data_dir]",
		Short: "Check the progress database and runtime readiness",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var dataDir string
			if len(args) == 1 {
				if dataDir, err = config.ExpandPath(args[0]); err != nil {
					return fmt.Errorf("resolve data directory: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			dbOK, err := writeDatabaseHealth(cmd, cfg, colorize)
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			results := preflight.RunAll(cmd.Context(), cfg, dataDir)
			for _, line := range preflightLines(results, colorize) {
				fmt.Fprintln(out, line)
			}

			failed := len(preflight.Failures(results))
			if failed > 0 || !dbOK {
				return fmt.Errorf("health check failed (%d preflight failures)", failed)
			}
			return nil
		},
	}
}

func writeDatabaseHealth(cmd *cobra.Command, cfg *config.Config, colorize bool) (bool, error) {
	out := cmd.OutOrStdout()
	for _, line := range renderSectionHeader("Progress database", colorize) {
		fmt.Fprintln(out, line)
	}

	dbPath := filepath.Join(cfg.Paths.OutputDir, queue.DatabaseFile)
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, renderStatusLine("Database", statusInfo, "not created yet ("+dbPath+")", colorize))
		return true, nil
	}

	store, err := queue.OpenDir(cfg.Paths.OutputDir)
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Database", statusError, err.Error(), colorize))
		return false, nil
	}
	defer store.Close()

	health, err := store.CheckHealth(cmd.Context())
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Database", statusError, err.Error(), colorize))
		return false, nil
	}
	writeHealthDetails(out, health)
	ok := health.DatabaseReadable && health.TableExists && health.IntegrityCheck && len(health.MissingColumns) == 0
	if ok {
		fmt.Fprintln(out, renderStatusLine("Database", statusOK, "healthy", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Database", statusError, "unhealthy", colorize))
	}
	return ok, nil
}

func writeHealthDetails(out io.Writer, health queue.DatabaseHealth) {
	fmt.Fprintf(out, "Database path: %s\n", health.DBPath)
	fmt.Fprintf(out, "Readable: %s\n", yesNo(health.DatabaseReadable))
	fmt.Fprintf(out, "Schema version: %s\n", health.SchemaVersion)
	fmt.Fprintf(out, "samples table present: %s\n", yesNo(health.TableExists))
	if len(health.MissingColumns) > 0 {
		missing := append([]string(nil), health.MissingColumns...)
		sort.Strings(missing)
		fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
	} else {
		fmt.Fprintln(out, "Missing columns: none")
	}
	fmt.Fprintf(out, "Integrity check: %s\n", yesNo(health.IntegrityCheck))
	fmt.Fprintf(out, "Total items: %d\n", health.TotalItems)
	if health.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", health.Error)
	}
}
