// Package identity persists identity records: the durable half of authgate.
//
// Three [Store] implementations are provided:
//
//   - [PostgresStore] over database/sql with the pgx stdlib driver
//   - [SQLiteStore] over the pure-Go modernc.org/sqlite driver
//   - [MemoryStore] for tests and local development
//
// Usernames and emails are normalized (trimmed, lowercased) before every
// write and lookup, and are unique per store. Schema changes ship as embedded
// SQL migrations applied by [Migrate].
//
// # What this package must NOT do
//
//   - Touch Redis or any session state.
//   - Hash passwords. It stores the digest it is given.
package identity
