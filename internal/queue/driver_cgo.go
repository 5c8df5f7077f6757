//go:build cgo_sqlite

package queue

// Build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./...
import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver backing the Store.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)
