package db

import "database/sql"

// Migrate ensures the sqlite schema is up-to-date. Statements are
// idempotent so they can run on every start.
//
// Timestamps are stored as integer unix milliseconds in UTC; whole
// seconds would let a timer fire up to a second before its expiry.
func Migrate(d *sql.DB) error {
	stmts := []string{
		// Pending timers. Rows are write-once, delete-once: a timer is
		// never updated, only created and eventually removed.
		`CREATE TABLE IF NOT EXISTS timers (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			event   TEXT NOT NULL,
			extra   TEXT NOT NULL DEFAULT '{"args":[],"kwargs":{}}',
			expires INTEGER NOT NULL,
			created INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_timers_expires ON timers(expires);`,
		`CREATE INDEX IF NOT EXISTS idx_timers_event ON timers(event);`,

		// Per-user IANA timezone for parsing and displaying times.
		`CREATE TABLE IF NOT EXISTS user_timezones (
			user_id  TEXT PRIMARY KEY,
			timezone TEXT NOT NULL
		);`,
	}

	for _, q := range stmts {
		if _, err := d.Exec(q); err != nil {
			return err
		}
	}
	return nil
}
