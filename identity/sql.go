package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	rebind     func(query string) string
	encodeTime func(time.Time) any
	decodeTime func(any) (time.Time, error)
	duplicate  func(error) error
}

// sqlStore implements Store over database/sql. Queries use ? placeholders and
// are rebound per dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

const selectColumns = `SELECT id, username, email, password_hash, role, created_at, updated_at FROM identities `

func (s *sqlStore) GetByID(ctx context.Context, id string) (*Identity, error) {
	return s.getOne(ctx, selectColumns+`WHERE id = ?`, id)
}

func (s *sqlStore) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	return s.getOne(ctx, selectColumns+`WHERE email = ?`, Normalize(email))
}

func (s *sqlStore) GetByUsername(ctx context.Context, username string) (*Identity, error) {
	return s.getOne(ctx, selectColumns+`WHERE username = ?`, Normalize(username))
}

func (s *sqlStore) Create(ctx context.Context, ident *Identity) error {
	if err := prepare(ident, s.now()); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO identities (id, username, email, password_hash, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		ident.ID,
		ident.Username,
		ident.Email,
		ident.PasswordHash,
		ident.Role,
		s.dialect.encodeTime(ident.CreatedAt),
		s.dialect.encodeTime(ident.UpdatedAt),
	)
	if err != nil {
		if dup := s.dialect.duplicate(err); dup != nil {
			return dup
		}
		return fmt.Errorf("identity: insert: %w", err)
	}
	return nil
}

func (s *sqlStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE identities SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash,
		s.dialect.encodeTime(s.now().UTC().Truncate(time.Millisecond)),
		id,
	)
	if err != nil {
		return fmt.Errorf("identity: update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("identity: update password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) getOne(ctx context.Context, query string, arg string) (*Identity, error) {
	var (
		ident            Identity
		created, updated any
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), arg).Scan(
		&ident.ID,
		&ident.Username,
		&ident.Email,
		&ident.PasswordHash,
		&ident.Role,
		&created,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identity: query: %w", err)
	}
	if ident.CreatedAt, err = s.dialect.decodeTime(created); err != nil {
		return nil, err
	}
	if ident.UpdatedAt, err = s.dialect.decodeTime(updated); err != nil {
		return nil, err
	}
	return &ident, nil
}

// rebindDollar rewrites ? placeholders as $1..$n.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func rebindNone(query string) string { return query }
