// Package logs reads the JSON run log (fable.log) for `fable logs`.
//
// Last returns the final N matching lines with bounded memory, Follow polls
// for appended lines until the context ends, and Filter selects lines by
// level, item path or run id using the field names written by the logging
// package.
package logs
