// Package logging assembles structured slog loggers and formatting helpers used
// across fable.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so dispatcher and labeling code can tag log
// lines with run IDs, batch IDs, and item paths. A run always writes JSON lines
// to fable.log next to the progress database in addition to the terminal
// stream. The package also provides a no-op logger for tests and wiring code
// that cannot fail.
package logging
