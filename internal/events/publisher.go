package events

import (
	"context"
	"sync"
	"time"
)

// TopicUpdate is pushed to listeners whenever a meeting's topic state
// changes: a new segment opens or an existing summary is refreshed.
type TopicUpdate struct {
	MeetingID    string    `json:"meeting_id"`
	TopicID      int64     `json:"topic_id"`
	TopicName    string    `json:"topic_name"`
	Summary      string    `json:"summary"`
	Keywords     []string  `json:"keywords"`
	KeyPoints    []string  `json:"key_points"`
	KeyDecisions []string  `json:"key_decisions"`
	PendingItems []string  `json:"pending_items"`
	Participants []string  `json:"participants"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Publisher interface {
	Publish(ctx context.Context, update TopicUpdate) error
}

// Memory collects updates in-process. Used in tests and as a safe default
// when no websocket hub is wired.
type Memory struct {
	mu      sync.Mutex
	updates []TopicUpdate
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(ctx context.Context, update TopicUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update)
	return nil
}

func (m *Memory) Updates() []TopicUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TopicUpdate, len(m.updates))
	copy(out, m.updates)
	return out
}
