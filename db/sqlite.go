// Package db opens and migrates the optional session transcript store. The
// store is an audit log of MCP exchanges, not core protocol state; sessions
// run fine without it.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	libsql "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oxhq/mcpwire/models"
)

// Connect opens the transcript database named by dsn and brings its schema
// up to date. Local SQLite paths (":memory:" included) and remote
// libsql/Turso URLs are both accepted.
func Connect(dsn string, debug bool) (*gorm.DB, error) {
	dialector, err := resolveDialector(dsn)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{}
	if debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	store, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}

	if sqlDB, dbErr := store.DB(); dbErr == nil {
		// Exchange rows reference their session row.
		sqlDB.Exec("PRAGMA foreign_keys = ON")
	}

	if err := Migrate(store); err != nil {
		return nil, fmt.Errorf("migrate transcript store: %w", err)
	}
	return store, nil
}

// resolveDialector picks the gorm dialector for a DSN: a libsql connector
// for remote URLs, plain file-backed SQLite otherwise.
func resolveDialector(dsn string) (gorm.Dialector, error) {
	if remoteDSN(dsn) {
		opts := []libsql.Option{}
		if token := os.Getenv("MCPWIRE_LIBSQL_AUTH_TOKEN"); token != "" {
			opts = append(opts, libsql.WithAuthToken(token))
		}
		connector, err := libsql.NewConnector(dsn, opts...)
		if err != nil {
			return nil, fmt.Errorf("libsql connector for %s: %w", dsn, err)
		}
		return sqlite.New(sqlite.Config{
			DriverName: "libsql",
			Conn:       sql.OpenDB(connector),
			DSN:        dsn,
		}), nil
	}

	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("prepare database directory: %w", err)
		}
	}
	return sqlite.Open(dsn), nil
}

// remoteDSN reports whether the DSN names a Turso/libsql endpoint rather
// than a local file.
func remoteDSN(dsn string) bool {
	for _, scheme := range []string{"libsql:", "https://", "http://"} {
		if strings.HasPrefix(dsn, scheme) {
			return true
		}
	}
	return false
}

// Migrate creates or updates the transcript tables.
func Migrate(store *gorm.DB) error {
	return store.AutoMigrate(
		&models.Session{},
		&models.Exchange{},
	)
}
