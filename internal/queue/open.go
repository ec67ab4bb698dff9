package queue

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Open opens the database behind a queue DSN and makes sure the schema
// exists.
//
//   - "" or ":memory:" is an in memory sqlite database
//   - "libsql://", "http://", "https://", "ws://" and "wss://" urls go to a
//     remote libsql server
//   - "sqlite://<path>", "file:<path>" or a plain path is a local sqlite file
func Open(dsn string) (*sql.DB, error) {
	db, err := open(strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

var remotePrefixes = []string{"libsql://", "http://", "https://", "ws://", "wss://"}

func isRemote(dsn string) bool {
	for _, prefix := range remotePrefixes {
		if strings.HasPrefix(dsn, prefix) {
			return true
		}
	}
	return false
}

// WithAuthToken adds a libsql auth token to a remote DSN, local DSNs are
// returned unchanged.
func WithAuthToken(dsn, token string) (string, error) {
	if token == "" || !isRemote(dsn) {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse queue dsn: %w", err)
	}
	query := u.Query()
	query.Set("authToken", token)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func open(dsn string) (*sql.DB, error) {
	if strings.HasPrefix(dsn, "redis://") || strings.HasPrefix(dsn, "rediss://") {
		return nil, fmt.Errorf("queue dsn: redis is not supported, use a sqlite path or a libsql url")
	}
	if isRemote(dsn) {
		return sql.Open("libsql", dsn)
	}

	if dsn == "" || dsn == ":memory:" {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, err
		}
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		return db, nil
	}

	path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "file:")
	if dir := filepath.Dir(path); dir != "." {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// see https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
