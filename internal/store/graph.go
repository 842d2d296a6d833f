package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parleyhq/parley/internal/graphrepo"
)

func (s *Store) SaveMeeting(ctx context.Context, meta graphrepo.MeetingMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO meetings (id, team_id, title, started_at_unix)
		VALUES (?, ?, ?, ?)`,
		meta.MeetingID, meta.TeamID, meta.Title, meta.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("save meeting %s: %w", meta.MeetingID, err)
	}
	return nil
}

func (s *Store) MeetingContext(ctx context.Context, meetingID string) (graphrepo.MeetingMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, title, started_at_unix FROM meetings WHERE id = ?`,
		meetingID)

	var meta graphrepo.MeetingMeta
	var startedAtUnix int64
	if err := row.Scan(&meta.MeetingID, &meta.TeamID, &meta.Title, &startedAtUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return graphrepo.MeetingMeta{}, graphrepo.ErrMeetingUnknown
		}
		return graphrepo.MeetingMeta{}, fmt.Errorf("load meeting %s: %w", meetingID, err)
	}
	meta.StartedAt = time.Unix(startedAtUnix, 0).UTC()
	return meta, nil
}

func (s *Store) SaveDecision(ctx context.Context, decision graphrepo.Decision) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (meeting_id, team_id, topic_name, text, decided_at_unix)
		VALUES (?, ?, ?, ?, ?)`,
		decision.MeetingID, decision.TeamID, decision.TopicName, decision.Text,
		decision.DecidedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("save decision: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("decision insert id: %w", err)
	}
	return id, nil
}

func (s *Store) TeamDecisions(ctx context.Context, teamID string, limit int) ([]graphrepo.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, topic_name, text, decided_at_unix
		FROM decisions WHERE team_id = ? ORDER BY decided_at_unix DESC, id DESC LIMIT ?`,
		teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("query team decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows, teamID)
}

func (s *Store) SearchDecisions(ctx context.Context, teamID, query string, limit int) ([]graphrepo.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, topic_name, text, decided_at_unix
		FROM decisions
		WHERE team_id = ? AND text LIKE '%' || ? || '%'
		ORDER BY decided_at_unix DESC, id DESC LIMIT ?`,
		teamID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows, teamID)
}

func scanDecisions(rows *sql.Rows, teamID string) ([]graphrepo.Decision, error) {
	var out []graphrepo.Decision
	for rows.Next() {
		var decision graphrepo.Decision
		var decidedAtUnix int64
		if err := rows.Scan(&decision.ID, &decision.MeetingID, &decision.TopicName,
			&decision.Text, &decidedAtUnix); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decision.TeamID = teamID
		decision.DecidedAt = time.Unix(decidedAtUnix, 0).UTC()
		out = append(out, decision)
	}
	return out, rows.Err()
}
