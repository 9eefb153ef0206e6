package drivers

import (
	// Register pgx's database/sql adapter under the driver name "pgx" so
	// -db-type=pgx reaches PostgreSQL without driver-specific call sites.
	_ "github.com/jackc/pgx/v5/stdlib"
)
