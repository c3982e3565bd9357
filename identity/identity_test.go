package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "identities.db")
	require.NoError(t, Migrate(DriverSQLite, path, "up"))

	db, err := OpenSQLite(path)
	require.NoError(t, err)

	store := NewSQLiteStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storesUnderTest(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newTestSQLiteStore(t),
	}
}

func TestStoreCreateAndLookup(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ident := &Identity{Username: "  Alice_1 ", Email: "Alice@Example.COM", PasswordHash: "digest"}
			require.NoError(t, store.Create(ctx, ident))

			assert.NotEmpty(t, ident.ID)
			assert.Equal(t, "alice_1", ident.Username)
			assert.Equal(t, "alice@example.com", ident.Email)
			assert.Equal(t, DefaultRole, ident.Role)
			assert.False(t, ident.CreatedAt.IsZero())

			byID, err := store.GetByID(ctx, ident.ID)
			require.NoError(t, err)
			assert.Equal(t, ident.Email, byID.Email)
			assert.Equal(t, "digest", byID.PasswordHash)
			assert.True(t, ident.CreatedAt.Equal(byID.CreatedAt))

			byEmail, err := store.GetByEmail(ctx, "ALICE@example.com ")
			require.NoError(t, err)
			assert.Equal(t, ident.ID, byEmail.ID)

			byName, err := store.GetByUsername(ctx, "ALICE_1")
			require.NoError(t, err)
			assert.Equal(t, ident.ID, byName.ID)
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.GetByEmail(ctx, "nobody@example.com")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.GetByUsername(ctx, "nobody")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.UpdatePasswordHash(ctx, "missing", "x"), ErrNotFound)
		})
	}
}

func TestStoreDuplicates(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Create(ctx, &Identity{Username: "bob", Email: "bob@example.com", PasswordHash: "h"}))

			err := store.Create(ctx, &Identity{Username: "bobby", Email: "BOB@example.com", PasswordHash: "h"})
			assert.ErrorIs(t, err, ErrDuplicateEmail)
			assert.ErrorIs(t, err, ErrDuplicate)

			err = store.Create(ctx, &Identity{Username: "Bob", Email: "other@example.com", PasswordHash: "h"})
			assert.ErrorIs(t, err, ErrDuplicateUsername)
			assert.ErrorIs(t, err, ErrDuplicate)
		})
	}
}

func TestStoreUpdatePasswordHash(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ident := &Identity{Username: "carol", Email: "carol@example.com", PasswordHash: "old"}
			require.NoError(t, store.Create(ctx, ident))

			require.NoError(t, store.UpdatePasswordHash(ctx, ident.ID, "new"))

			got, err := store.GetByID(ctx, ident.ID)
			require.NoError(t, err)
			assert.Equal(t, "new", got.PasswordHash)
		})
	}
}

func TestCreateRejectsIncompleteRecord(t *testing.T) {
	store := NewMemoryStore()
	err := store.Create(context.Background(), &Identity{Username: "x", Email: "", PasswordHash: "h"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicate))
}

func TestSanitizedDropsPasswordHash(t *testing.T) {
	ident := &Identity{ID: "id", Username: "u", Email: "e@x.io", PasswordHash: "secret", Role: "admin"}
	pub := ident.Sanitized()
	assert.Equal(t, Public{ID: "id", Username: "u", Email: "e@x.io", Role: "admin"}, pub)
}

func TestMigrateIsIdempotentAndReversible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	require.NoError(t, Migrate(DriverSQLite, path, "up"))
	require.NoError(t, Migrate(DriverSQLite, path, "up"))

	version, dirty, err := MigrationVersion(DriverSQLite, path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, Migrate(DriverSQLite, path, "down"))
	version, _, err = MigrationVersion(DriverSQLite, path)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrateRejectsBadInput(t *testing.T) {
	assert.Error(t, Migrate(DriverSQLite, "", "up"))
	assert.Error(t, Migrate(DriverSQLite, "x.db", "sideways"))
	assert.Error(t, Migrate("oracle", "x", "up"))
	assert.Error(t, Migrate(DriverPostgres, "host=localhost", "up"))
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", rebindDollar("a = ? AND b = ?"))
}

func TestSQLiteDuplicateClassification(t *testing.T) {
	assert.Nil(t, sqliteDuplicate(errors.New("disk I/O error")))
	assert.Equal(t, ErrDuplicateEmail, sqliteDuplicate(errors.New("constraint failed: UNIQUE constraint failed: identities.email (2067)")))
}
