// Package graphrepo gives workflows read access to the wider meeting
// graph: which team a meeting belongs to and what that team has decided
// in earlier meetings.
package graphrepo

import (
	"context"
	"errors"
	"time"
)

var ErrMeetingUnknown = errors.New("meeting not in graph")

type MeetingMeta struct {
	MeetingID string    `json:"meeting_id"`
	TeamID    string    `json:"team_id"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// Decision is a recorded outcome from a past meeting, queryable across
// the whole team history.
type Decision struct {
	ID        int64     `json:"id"`
	MeetingID string    `json:"meeting_id"`
	TeamID    string    `json:"team_id"`
	TopicName string    `json:"topic_name"`
	Text      string    `json:"text"`
	DecidedAt time.Time `json:"decided_at"`
}

type Repository interface {
	SaveMeeting(ctx context.Context, meta MeetingMeta) error
	MeetingContext(ctx context.Context, meetingID string) (MeetingMeta, error)
	SaveDecision(ctx context.Context, decision Decision) (int64, error)
	TeamDecisions(ctx context.Context, teamID string, limit int) ([]Decision, error)
	SearchDecisions(ctx context.Context, teamID, query string, limit int) ([]Decision, error)
}
