package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fable/internal/config"
	"fable/internal/queue"
)

var statusTitle = cases.Title(language.Und)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show progress counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderStatusTable(health))
				fmt.Fprintf(out, "Complete: %s\n", percentComplete(health))
				if !health.LastUpdated.IsZero() {
					fmt.Fprintf(out, "Last update: %s\n", humanize.Time(health.LastUpdated))
				}
				fmt.Fprintf(out, "Output: %s\n", cfg.OutputPath())
				return nil
			})
		},
	}
}

func renderStatusTable(health queue.HealthSummary) string {
	counts := map[queue.Status]int{
		queue.StatusPending: health.Pending,
		queue.StatusDone:    health.Done,
		queue.StatusError:   health.Error,
	}
	rows := make([][]string, 0, len(counts)+1)
	for _, status := range queue.AllStatuses() {
		rows = append(rows, []string{statusTitle.String(string(status)), humanize.Comma(int64(counts[status]))})
	}
	rows = append(rows, []string{"Total", humanize.Comma(int64(health.Total))})
	return renderTable([]string{"Status", "Items"}, rows, []columnAlignment{alignLeft, alignRight})
}

func percentComplete(health queue.HealthSummary) string {
	if health.Total == 0 {
		return "0%"
	}
	pct := float64(health.Settled()) * 100 / float64(health.Total)
	return humanize.FtoaWithDigits(pct, 1) + "%"
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.Path,
						string(item.Status),
						strconv.Itoa(item.Attempts),
						truncate(item.ErrorMessage, 60),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Path", "Status", "Attempts", "Last error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (pending, done, error)")
	return cmd
}

func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q (want pending, done or error)", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [path...]",
		Short: "Return errored items to pending (all when no paths are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				updated, err := store.RetryErrored(cmd.Context(), args...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case updated == 0 && len(args) > 0:
					fmt.Fprintln(out, "No matching errored items")
				case updated == 0:
					fmt.Fprintln(out, "No errored items to retry")
				default:
					fmt.Fprintf(out, "Reset %s items to pending\n", humanize.Comma(updated))
				}
				return nil
			})
		},
	}
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
