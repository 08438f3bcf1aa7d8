//go:build cgo

package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverName is the database/sql driver backing the store. The cgo driver is
// preferred when a C toolchain is available.
const driverName = "sqlite3"
