// Package storage keeps the set of users the bot has seen.
//
// Drivers:
//   - "memory": process lifetime only (default)
//   - "file":   append-only JSON Lines journal, replayed on open
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
package storage
