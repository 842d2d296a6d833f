package orchestrator

import (
	"context"
	"time"
)

// ActionItem is a commitment extracted from a meeting. Verified marks
// items that passed the evaluation gate; forced saves after retry
// exhaustion carry Verified=false.
type ActionItem struct {
	ID                int64     `json:"id"`
	MeetingID         string    `json:"meeting_id"`
	Description       string    `json:"description"`
	Owner             string    `json:"owner,omitempty"`
	Due               string    `json:"due,omitempty"`
	SourceUtteranceID int64     `json:"source_utterance_id"`
	Verified          bool      `json:"verified"`
	CreatedAt         time.Time `json:"created_at"`
}

type MinutesSection struct {
	Topic                string   `json:"topic"`
	Summary              string   `json:"summary"`
	Decisions            []string `json:"decisions,omitempty"`
	EvidenceUtteranceIDs []int64  `json:"evidence_utterance_ids"`
}

// Minutes is the generated meeting document. Grounded reports whether
// every section's cited evidence resolved to real utterances; minutes
// persisted after retry exhaustion carry Grounded=false.
type Minutes struct {
	ID        int64            `json:"id"`
	MeetingID string           `json:"meeting_id"`
	Title     string           `json:"title"`
	Overview  string           `json:"overview"`
	Sections  []MinutesSection `json:"sections"`
	Grounded  bool             `json:"grounded"`
	CreatedAt time.Time        `json:"created_at"`
}

// ArtifactStore persists workflow outputs. The sqlite store implements
// it; tests supply fakes.
type ArtifactStore interface {
	SaveActionItems(ctx context.Context, meetingID string, items []ActionItem) error
	SaveMinutes(ctx context.Context, minutes *Minutes) error
}
