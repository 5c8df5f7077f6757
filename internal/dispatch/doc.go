// Package dispatch drives the fetch, execute, commit loop over the progress
// store.
//
// A Driver registers every discovered path, then repeatedly fetches a bounded
// batch of pending items, runs it through the worker pool and commits each
// outcome before fetching the next batch. Successful records are written and
// synced to the output sink before the item is marked done, so a crash at any
// point leaves the item pending and it is processed again on the next run
// (at-least-once). Items interrupted by cancellation are left pending.
package dispatch
