package identity

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by an embedded SQLite database.
type SQLiteStore struct {
	sqlStore
}

// OpenSQLite opens the database file at path with foreign keys and a busy
// timeout enabled.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewSQLiteStore wraps an open database. The schema must already be migrated.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlStore{
		db: db,
		dialect: dialect{
			rebind:     rebindNone,
			encodeTime: func(t time.Time) any { return t.UnixMilli() },
			decodeTime: decodeUnixMilli,
			duplicate:  sqliteDuplicate,
		},
		now: time.Now,
	}}
}

func decodeUnixMilli(v any) (time.Time, error) {
	ms, ok := v.(int64)
	if !ok {
		return time.Time{}, fmt.Errorf("identity: unexpected timestamp type %T", v)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// sqliteDuplicate inspects the driver message; modernc reports constraint
// failures as "UNIQUE constraint failed: identities.<column>".
func sqliteDuplicate(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "identities.email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "identities.username"):
		return ErrDuplicateUsername
	default:
		return ErrDuplicate
	}
}
