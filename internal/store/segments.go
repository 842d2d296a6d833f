package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parleyhq/parley/internal/contextmgr"
)

func (s *Store) SaveSegment(ctx context.Context, segment *contextmgr.TopicSegment) error {
	keywords, err := encodeStrings(segment.Keywords)
	if err != nil {
		return err
	}
	keyPoints, err := encodeStrings(segment.KeyPoints)
	if err != nil {
		return err
	}
	keyDecisions, err := encodeStrings(segment.KeyDecisions)
	if err != nil {
		return err
	}
	pendingItems, err := encodeStrings(segment.PendingItems)
	if err != nil {
		return err
	}
	participants, err := encodeStrings(segment.Participants)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO topic_segments
			(meeting_id, id, name, keywords_json, start_utterance_id, end_utterance_id,
			 summary, key_points_json, key_decisions_json, pending_items_json,
			 participants_json, turn_count, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		segment.MeetingID, segment.ID, segment.Name, keywords,
		segment.StartUtteranceID, segment.EndUtteranceID, segment.Summary,
		keyPoints, keyDecisions, pendingItems, participants,
		segment.TurnCount, segment.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save segment %d: %w", segment.ID, err)
	}
	return nil
}

func (s *Store) SegmentsForMeeting(ctx context.Context, meetingID string) ([]contextmgr.TopicSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, keywords_json, start_utterance_id, end_utterance_id,
		       summary, key_points_json, key_decisions_json, pending_items_json,
		       participants_json, turn_count, updated_at_unix
		FROM topic_segments WHERE meeting_id = ? ORDER BY id ASC`,
		meetingID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []contextmgr.TopicSegment
	for rows.Next() {
		var segment contextmgr.TopicSegment
		var keywords, keyPoints, keyDecisions, pendingItems, participants string
		var updatedAtUnix int64
		if err := rows.Scan(&segment.ID, &segment.Name, &keywords,
			&segment.StartUtteranceID, &segment.EndUtteranceID, &segment.Summary,
			&keyPoints, &keyDecisions, &pendingItems, &participants,
			&segment.TurnCount, &updatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segment.MeetingID = meetingID
		segment.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
		if err := decodeStrings(keywords, &segment.Keywords); err != nil {
			return nil, err
		}
		if err := decodeStrings(keyPoints, &segment.KeyPoints); err != nil {
			return nil, err
		}
		if err := decodeStrings(keyDecisions, &segment.KeyDecisions); err != nil {
			return nil, err
		}
		if err := decodeStrings(pendingItems, &segment.PendingItems); err != nil {
			return nil, err
		}
		if err := decodeStrings(participants, &segment.Participants); err != nil {
			return nil, err
		}
		out = append(out, segment)
	}
	return out, rows.Err()
}

func encodeStrings(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(data), nil
}

func decodeStrings(raw string, out *[]string) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	if len(*out) == 0 {
		*out = nil
	}
	return nil
}
