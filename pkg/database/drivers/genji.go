package drivers

import (
	// Register the Genji embedded driver for binaries that opt into it via
	// -db-type=genji.
	_ "github.com/genjidb/genji/driver"
)
