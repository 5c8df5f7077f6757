package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fable/internal/config"
	"fable/internal/output"
)

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [csv]",
		Short: "Show the class distribution of a labeled CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.OutputPath()
			if len(args) == 1 {
				if path, err = config.ExpandPath(args[0]); err != nil {
					return fmt.Errorf("resolve csv path: %w", err)
				}
			}

			summary, err := output.Summarize(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s rows from %s images\n", path,
				humanize.Comma(int64(summary.Rows)), humanize.Comma(int64(summary.Files)))
			fmt.Fprintln(out, renderSummaryTable(summary))
			return nil
		},
	}
}

func renderSummaryTable(summary output.Summary) string {
	rows := make([][]string, 0, len(summary.Classes))
	for _, class := range summary.Classes {
		share := "0%"
		if summary.Rows > 0 {
			share = humanize.FtoaWithDigits(float64(class.Count)*100/float64(summary.Rows), 1) + "%"
		}
		rows = append(rows, []string{class.Name, humanize.Comma(int64(class.Count)), share})
	}
	return renderTable([]string{"Accessory", "Rows", "Share"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight})
}
