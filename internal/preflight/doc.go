// Package preflight provides readiness checks for the filesystem paths and the
// vision model that a labeling run depends on.
//
// These checks run in two contexts:
//   - "fable run" calls RunAll before registering work. If any check fails the
//     run stops before hours are spent on a doomed batch loop.
//   - "fable health" prints every result next to the progress database check.
package preflight
