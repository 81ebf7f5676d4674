package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var remoteSchemes = []string{"libsql://", "http://", "https://", "ws://", "wss://"}

// IsRemote reports whether dsn points at a libsql server rather than a local
// sqlite file.
func IsRemote(dsn string) bool {
	for _, scheme := range remoteSchemes {
		if strings.HasPrefix(dsn, scheme) {
			return true
		}
	}
	return false
}

func wrapOpen(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// Open opens a local sqlite database (a path or ":memory:") or a remote libsql
// database and applies the schema.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	var (
		conn *sql.DB
		err  error
	)
	if IsRemote(dsn) {
		conn, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, wrapOpen(err)
		}
	} else {
		conn, err = openSqlite(dsn)
		if err != nil {
			return nil, err
		}
	}

	err = Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, wrapOpen(err)
	}
	return conn, nil
}

func openSqlite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, wrapOpen(err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapOpen(err)
	}

	// sqlite only allows one writer at a time, concurrent writers queue on
	// the pool instead of failing with SQLITE_BUSY. this also keeps a
	// ":memory:" database on a single connection.
	conn.SetMaxOpenConns(1)
	_, err = conn.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		conn.Close()
		return nil, wrapOpen(err)
	}
	_, err = conn.Exec("PRAGMA busy_timeout=5000")
	if err != nil {
		conn.Close()
		return nil, wrapOpen(err)
	}
	return conn, nil
}

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
