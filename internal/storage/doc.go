// Package storage keeps an optional audit trail of outbound bot actions.
//
// Drivers:
//   - "file": append-only JSON Lines next to the configured path
//   - "sqlite": a single SQLite database (pure Go driver, WAL)
//
// The trail is write-only from the bot's point of view: nothing here is read
// back into engagement state on startup.
package storage
