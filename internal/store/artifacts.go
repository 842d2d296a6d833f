package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parleyhq/parley/internal/orchestrator"
)

func (s *Store) SaveActionItems(ctx context.Context, meetingID string, items []orchestrator.ActionItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin action items tx: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO action_items
				(meeting_id, description, owner, due, source_utterance_id, verified, created_at_unix)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			meetingID, item.Description, item.Owner, item.Due,
			item.SourceUtteranceID, boolToInt(item.Verified), item.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("insert action item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit action items: %w", err)
	}
	return nil
}

func (s *Store) ActionItemsForMeeting(ctx context.Context, meetingID string) ([]orchestrator.ActionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, owner, due, source_utterance_id, verified, created_at_unix
		FROM action_items WHERE meeting_id = ? ORDER BY id ASC`,
		meetingID)
	if err != nil {
		return nil, fmt.Errorf("query action items: %w", err)
	}
	defer rows.Close()

	var out []orchestrator.ActionItem
	for rows.Next() {
		var item orchestrator.ActionItem
		var verified int
		var createdAtUnix int64
		if err := rows.Scan(&item.ID, &item.Description, &item.Owner, &item.Due,
			&item.SourceUtteranceID, &verified, &createdAtUnix); err != nil {
			return nil, fmt.Errorf("scan action item: %w", err)
		}
		item.MeetingID = meetingID
		item.Verified = verified != 0
		item.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		out = append(out, item)
	}
	return out, rows.Err()
}

// SaveMinutes inserts the document and fills in its assigned ID.
func (s *Store) SaveMinutes(ctx context.Context, minutes *orchestrator.Minutes) error {
	sections, err := json.Marshal(minutes.Sections)
	if err != nil {
		return fmt.Errorf("encode minutes sections: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO minutes (meeting_id, title, overview, sections_json, grounded, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?)`,
		minutes.MeetingID, minutes.Title, minutes.Overview, string(sections),
		boolToInt(minutes.Grounded), minutes.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save minutes: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("minutes insert id: %w", err)
	}
	minutes.ID = id
	return nil
}

// LatestMinutes returns the newest minutes for a meeting, or sql.ErrNoRows
// wrapped when none exist.
func (s *Store) LatestMinutes(ctx context.Context, meetingID string) (orchestrator.Minutes, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, overview, sections_json, grounded, created_at_unix
		FROM minutes WHERE meeting_id = ? ORDER BY id DESC LIMIT 1`,
		meetingID)

	var minutes orchestrator.Minutes
	var sections string
	var grounded int
	var createdAtUnix int64
	if err := row.Scan(&minutes.ID, &minutes.Title, &minutes.Overview,
		&sections, &grounded, &createdAtUnix); err != nil {
		return orchestrator.Minutes{}, fmt.Errorf("load minutes: %w", err)
	}
	minutes.MeetingID = meetingID
	minutes.Grounded = grounded != 0
	minutes.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	if err := json.Unmarshal([]byte(sections), &minutes.Sections); err != nil {
		return orchestrator.Minutes{}, fmt.Errorf("decode minutes sections: %w", err)
	}
	return minutes, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
