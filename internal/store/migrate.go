package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL DEFAULT '',
		conference_link     TEXT NOT NULL DEFAULT '',
		conference_password TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id          TEXT PRIMARY KEY,
		category_id TEXT REFERENCES categories(id)
	)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id                  TEXT PRIMARY KEY,
		title               TEXT NOT NULL DEFAULT '',
		description         TEXT NOT NULL DEFAULT '',
		category_id         TEXT REFERENCES categories(id),
		scheduled_at        TIMESTAMPTZ,
		duration_hours      DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_virtual          BOOLEAN NOT NULL DEFAULT FALSE,
		status              TEXT NOT NULL DEFAULT 'scheduled',
		conference_link     TEXT NOT NULL DEFAULT '',
		conference_password TEXT NOT NULL DEFAULT '',
		use_custom_link     BOOLEAN NOT NULL DEFAULT FALSE,
		location            TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_category_time ON meetings(category_id, scheduled_at)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id             TEXT PRIMARY KEY,
		student_id     TEXT NOT NULL,
		meeting_id     TEXT NOT NULL REFERENCES meetings(id),
		category_id    TEXT NOT NULL,
		recorded_at    TIMESTAMPTZ NOT NULL,
		attended       BOOLEAN NOT NULL DEFAULT TRUE,
		was_late       BOOLEAN NOT NULL DEFAULT FALSE,
		source_ip      TEXT NOT NULL DEFAULT 'unknown',
		user_agent     TEXT NOT NULL DEFAULT 'unknown',
		last_access_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_student_meeting ON attendance(student_id, meeting_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_meeting ON attendance(meeting_id, recorded_at)`,
}

// SQLite keeps times in TIMESTAMP columns so go-sqlite3 scans them back
// into time.Time.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL DEFAULT '',
		conference_link     TEXT NOT NULL DEFAULT '',
		conference_password TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id          TEXT PRIMARY KEY,
		category_id TEXT REFERENCES categories(id)
	)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id                  TEXT PRIMARY KEY,
		title               TEXT NOT NULL DEFAULT '',
		description         TEXT NOT NULL DEFAULT '',
		category_id         TEXT REFERENCES categories(id),
		scheduled_at        TIMESTAMP,
		duration_hours      REAL NOT NULL DEFAULT 0,
		is_virtual          BOOLEAN NOT NULL DEFAULT 0,
		status              TEXT NOT NULL DEFAULT 'scheduled',
		conference_link     TEXT NOT NULL DEFAULT '',
		conference_password TEXT NOT NULL DEFAULT '',
		use_custom_link     BOOLEAN NOT NULL DEFAULT 0,
		location            TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_category_time ON meetings(category_id, scheduled_at)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id             TEXT PRIMARY KEY,
		student_id     TEXT NOT NULL,
		meeting_id     TEXT NOT NULL REFERENCES meetings(id),
		category_id    TEXT NOT NULL,
		recorded_at    TIMESTAMP NOT NULL,
		attended       BOOLEAN NOT NULL DEFAULT 1,
		was_late       BOOLEAN NOT NULL DEFAULT 0,
		source_ip      TEXT NOT NULL DEFAULT 'unknown',
		user_agent     TEXT NOT NULL DEFAULT 'unknown',
		last_access_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_student_meeting ON attendance(student_id, meeting_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_meeting ON attendance(meeting_id, recorded_at)`,
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *DB) error {
	schema := postgresSchema
	if db.Dialect == SQLite {
		schema = sqliteSchema
	}
	for i, stmt := range schema {
		if _, err := db.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
