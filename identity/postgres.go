package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

// PostgresStore is a Store backed by PostgreSQL through the pgx driver.
type PostgresStore struct {
	sqlStore
}

// OpenPostgres opens and pings a pgx-backed pool. Caller must call Close when done.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewPostgresStore wraps an open pool. The schema must already be migrated.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore{
		db: db,
		dialect: dialect{
			rebind:     rebindDollar,
			encodeTime: func(t time.Time) any { return t.UTC() },
			decodeTime: decodePGTime,
			duplicate:  pgDuplicate,
		},
		now: time.Now,
	}}
}

func decodePGTime(v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("identity: unexpected timestamp type %T", v)
	}
	return t.UTC(), nil
}

func pgDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "identities_email_key":
		return ErrDuplicateEmail
	case "identities_username_key":
		return ErrDuplicateUsername
	default:
		return ErrDuplicate
	}
}
