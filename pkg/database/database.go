// Package database persists merge statistics so every run leaves a queryable
// history next to the generated artifacts.  The default backend is an
// embedded SQLite file; Genji and PostgreSQL are available for operators who
// already keep case data in one of those.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"
)

// Database wraps the SQL connection together with the normalised driver name
// so query builders can stay declarative.
type Database struct {
	DB     *sql.DB
	Driver string
}

// Config holds the connection details collected from CLI flags.
type Config struct {
	DBType    string // "sqlite", "genji", or "pgx" (PostgreSQL)
	DBPath    string // file path for the embedded drivers
	DBConn    string // raw DSN for pgx, overrides the host/port fields
	DBHost    string
	DBPort    int
	DBUser    string
	DBPass    string
	DBName    string
	PGSSLMode string
}

// normalizeDBType trims and lowercases driver names so the switch blocks
// below never miss a backend because of incidental whitespace or case.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// New opens the statistics store and creates the schema when missing.
// Embedded drivers are capped to a single connection: the store is written
// once per run, concurrency buys nothing and SQLite would only trade it for
// busy errors.
func New(config Config) (*Database, error) {
	driverName := normalizeDBType(config.DBType)
	var dsn string

	switch driverName {
	case "sqlite", "genji":
		dsn = config.DBPath
		if dsn == "" {
			dsn = "kml_statistics." + driverName
		}
	case "pgx":
		if strings.TrimSpace(config.DBConn) != "" {
			dsn = config.DBConn
		} else {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open statistics store: %w", err)
	}

	if driverName == "sqlite" || driverName == "genji" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	// Cheap liveness probe with a timeout so startup never hangs on a
	// misconfigured PostgreSQL host.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect statistics store: %w", err)
		}
	}

	log.Printf("statistics store: driver %s, dsn %s", driverName, redactDSN(dsn))

	d := &Database{DB: db, Driver: driverName}
	if err := d.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the underlying connection.
func (db *Database) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

func (db *Database) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS merge_runs (
run_id TEXT PRIMARY KEY,
started_at BIGINT,
finished_at BIGINT,
merged_file TEXT,
source_count BIGINT,
total_valid_points BIGINT,
total_mapped_points BIGINT
)`,
		`CREATE TABLE IF NOT EXISTS source_statistics (
run_id TEXT,
file TEXT,
total_points BIGINT,
points_with_timestamps BIGINT,
valid_points BIGINT,
mapped_points BIGINT,
remark TEXT,
color TEXT,
color_name TEXT,
creation_time TEXT,
modification_time TEXT,
file_size BIGINT,
sha256 TEXT
)`,
	}
	for _, stmt := range statements {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create statistics schema: %w", err)
		}
	}
	return nil
}

// redactDSN masks the password in URL-style DSNs.  The resolved DSN lands in
// the run log, which sits next to the artifacts and gets shared.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// placeholder renders the n-th bind parameter for the active driver.
// PostgreSQL wants $N; the embedded drivers take ?.
func placeholder(driver string, n int) string {
	if normalizeDBType(driver) == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
