package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the sqlite persistence layer. It implements the narrow
// interfaces the context manager, the workflows and the graph repository
// each declare for themselves.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS meetings (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			started_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS utterances (
			meeting_id TEXT NOT NULL,
			id INTEGER NOT NULL,
			speaker_id TEXT NOT NULL,
			speaker_name TEXT NOT NULL,
			text TEXT NOT NULL,
			start_ms INTEGER NOT NULL DEFAULT 0,
			end_ms INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			ts_unix INTEGER NOT NULL,
			topic_id INTEGER NOT NULL DEFAULT -1,
			PRIMARY KEY(meeting_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS topic_segments (
			meeting_id TEXT NOT NULL,
			id INTEGER NOT NULL,
			name TEXT NOT NULL,
			keywords_json TEXT NOT NULL DEFAULT '[]',
			start_utterance_id INTEGER NOT NULL,
			end_utterance_id INTEGER NOT NULL DEFAULT -1,
			summary TEXT NOT NULL DEFAULT '',
			key_points_json TEXT NOT NULL DEFAULT '[]',
			key_decisions_json TEXT NOT NULL DEFAULT '[]',
			pending_items_json TEXT NOT NULL DEFAULT '[]',
			participants_json TEXT NOT NULL DEFAULT '[]',
			turn_count INTEGER NOT NULL DEFAULT 0,
			updated_at_unix INTEGER NOT NULL,
			PRIMARY KEY(meeting_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS action_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id TEXT NOT NULL,
			description TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			due TEXT NOT NULL DEFAULT '',
			source_utterance_id INTEGER NOT NULL DEFAULT 0,
			verified INTEGER NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS minutes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			overview TEXT NOT NULL DEFAULT '',
			sections_json TEXT NOT NULL DEFAULT '[]',
			grounded INTEGER NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			meeting_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			topic_name TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			decided_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_utterances_meeting ON utterances(meeting_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_team ON decisions(team_id, decided_at_unix);`,
		`CREATE INDEX IF NOT EXISTS idx_action_items_meeting ON action_items(meeting_id);`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
