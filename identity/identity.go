package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultRole is assigned when an identity is created without a role.
const DefaultRole = "user"

var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("identity not found")
	// ErrDuplicate is the parent of the per-field duplicate errors.
	ErrDuplicate = errors.New("identity already exists")
	// ErrDuplicateEmail reports a unique-email violation.
	ErrDuplicateEmail = &duplicateError{field: "email"}
	// ErrDuplicateUsername reports a unique-username violation.
	ErrDuplicateUsername = &duplicateError{field: "username"}
)

type duplicateError struct {
	field string
}

func (e *duplicateError) Error() string { return e.field + " already registered" }

// Field names the violated unique column.
func (e *duplicateError) Field() string { return e.field }

func (e *duplicateError) Unwrap() error { return ErrDuplicate }

// Identity is a durable account record.
type Identity struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public is the sanitized view of an Identity. It never carries the password
// digest and is what leaves the process in responses and caches.
type Public struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sanitized strips secret fields.
func (i *Identity) Sanitized() Public {
	return Public{
		ID:        i.ID,
		Username:  i.Username,
		Email:     i.Email,
		Role:      i.Role,
		CreatedAt: i.CreatedAt,
	}
}

// Store is the durable identity repository.
type Store interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	GetByUsername(ctx context.Context, username string) (*Identity, error)
	// Create inserts ident, assigning ID and timestamps when unset.
	Create(ctx context.Context, ident *Identity) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	Close() error
}

// Normalize trims and lowercases a username or email.
func Normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// prepare normalizes ident in place and fills defaults for insertion.
func prepare(ident *Identity, now time.Time) error {
	if ident == nil {
		return errors.New("identity: nil record")
	}
	ident.Username = Normalize(ident.Username)
	ident.Email = Normalize(ident.Email)
	if ident.Username == "" || ident.Email == "" || ident.PasswordHash == "" {
		return errors.New("identity: username, email and password hash are required")
	}
	if ident.ID == "" {
		ident.ID = uuid.NewString()
	}
	if ident.Role == "" {
		ident.Role = DefaultRole
	}
	if ident.CreatedAt.IsZero() {
		ident.CreatedAt = now
	}
	ident.CreatedAt = ident.CreatedAt.UTC().Truncate(time.Millisecond)
	ident.UpdatedAt = ident.CreatedAt
	return nil
}
