//go:build !test

// This file wires in the SQL drivers only for production builds.  go test
// excludes it via the build tag so package tests stay fast while runtime
// behaviour is unchanged for binaries.
package main

import "github.com/ot2i7ba/UFEDKMLstacker/pkg/database/drivers"

func init() {
	// Touch the drivers package so its blank imports register the SQL
	// backends before the statistics store opens a connection.
	drivers.Ready()
}
