//go:build !cgo_sqlite

package queue

// Pure Go SQLite; no C toolchain needed.
import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver backing the Store.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
