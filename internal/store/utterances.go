package store

import (
	"context"
	"fmt"
	"time"

	"github.com/parleyhq/parley/internal/transcript"
)

func (s *Store) SaveUtterance(ctx context.Context, meetingID string, u transcript.Utterance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO utterances
			(meeting_id, id, speaker_id, speaker_name, text, start_ms, end_ms, confidence, ts_unix, topic_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meetingID, u.ID, u.SpeakerID, u.SpeakerName, u.Text,
		u.StartMS, u.EndMS, u.Confidence, u.Timestamp.Unix(), u.TopicID)
	if err != nil {
		return fmt.Errorf("save utterance %d: %w", u.ID, err)
	}
	return nil
}

// RecentUtterances returns the newest utterances in ascending ID order.
func (s *Store) RecentUtterances(ctx context.Context, meetingID string, limit int) ([]transcript.Utterance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, speaker_id, speaker_name, text, start_ms, end_ms, confidence, ts_unix, topic_id
		FROM (
			SELECT * FROM utterances WHERE meeting_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		meetingID, limit)
	if err != nil {
		return nil, fmt.Errorf("query utterances: %w", err)
	}
	defer rows.Close()

	var out []transcript.Utterance
	for rows.Next() {
		var u transcript.Utterance
		var tsUnix int64
		if err := rows.Scan(&u.ID, &u.SpeakerID, &u.SpeakerName, &u.Text,
			&u.StartMS, &u.EndMS, &u.Confidence, &tsUnix, &u.TopicID); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		u.Timestamp = time.Unix(tsUnix, 0).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

// UtterancesInRange returns utterances with IDs in [fromID, toID].
func (s *Store) UtterancesInRange(ctx context.Context, meetingID string, fromID, toID int64) ([]transcript.Utterance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, speaker_id, speaker_name, text, start_ms, end_ms, confidence, ts_unix, topic_id
		FROM utterances WHERE meeting_id = ? AND id >= ? AND id <= ? ORDER BY id ASC`,
		meetingID, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("query utterance range: %w", err)
	}
	defer rows.Close()

	var out []transcript.Utterance
	for rows.Next() {
		var u transcript.Utterance
		var tsUnix int64
		if err := rows.Scan(&u.ID, &u.SpeakerID, &u.SpeakerName, &u.Text,
			&u.StartMS, &u.EndMS, &u.Confidence, &tsUnix, &u.TopicID); err != nil {
			return nil, fmt.Errorf("scan utterance: %w", err)
		}
		u.Timestamp = time.Unix(tsUnix, 0).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}
