// Package db opens and migrates the waitline SQLite database.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/waitline/waitline/errors"
)

// SQLiteBusyTimeoutMS is the busy handler timeout applied to every connection.
// Concurrent joins on the same queue serialize on the write lock; five seconds
// outlasts any transaction this codebase runs.
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with optimized settings.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}
	// Connection-scoped settings go in the DSN so every connection the
	// pool opens gets them, not just the one that happens to run an Exec.
	// Foreign keys keep queue deletion cascading to tickets on all
	// connections; _txlock=immediate makes transactions take the write
	// lock up front, so overlapping joins queue on the busy handler
	// instead of failing a deferred snapshot upgrade with SQLITE_BUSY.
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d&_txlock=immediate", path, SQLiteBusyTimeoutMS)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// WAL mode persists in the database file, so a single Exec suffices.
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return conn, nil
}

// OpenWithMigrations opens the database and applies all pending migrations.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	conn, err := Open(path, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(conn, logger); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return conn, nil
}
