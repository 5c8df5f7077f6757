// Package runner wires one labeling run end to end.
//
// It resolves the accessory schema, takes the single-dispatcher lock on the
// output directory, runs preflight checks, discovers images, opens the
// progress store and CSV sink, starts the worker pool and hands everything to
// the dispatch driver. Run lifecycle events are published through the
// notifications service. SIGINT and SIGTERM cancel the run; unfinished items
// stay pending for the next invocation.
package runner
