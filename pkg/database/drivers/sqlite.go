package drivers

import (
	// Register the pure-Go SQLite driver for production binaries.  Tests
	// skip importing the drivers package to stay fast.
	_ "modernc.org/sqlite"
)
