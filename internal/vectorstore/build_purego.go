//go:build !cgo_sqlite
// +build !cgo_sqlite

package vectorstore

// Default build: pure Go SQLite, no C compiler required.
//
//	go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
