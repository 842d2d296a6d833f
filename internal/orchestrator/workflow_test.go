package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/parleyhq/parley/internal/contextmgr"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/transcript"
)

type mockClient struct {
	completeFn func(ctx context.Context, req llm.Request) (string, error)
	calls      int
}

func (m *mockClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.calls++
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return "", errors.New("no completeFn configured")
}

func (m *mockClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	return nil, errors.New("streaming not configured")
}

type fakeArtifacts struct {
	mu      sync.Mutex
	items   []ActionItem
	minutes []Minutes
}

func (f *fakeArtifacts) SaveActionItems(ctx context.Context, meetingID string, items []ActionItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeArtifacts) SaveMinutes(ctx context.Context, minutes *Minutes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	minutes.ID = int64(len(f.minutes) + 1)
	f.minutes = append(f.minutes, *minutes)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func closedSegment(id int64, name string, start, end int64) contextmgr.TopicSegment {
	return contextmgr.TopicSegment{
		ID: id, MeetingID: "m-1", Name: name,
		StartUtteranceID: start, EndUtteranceID: end,
		Summary: "summary of " + name,
	}
}

// testSnapshot builds a two-topic meeting with utterances 1..6.
func testSnapshot(t *testing.T) contextmgr.ContextSnapshot {
	t.Helper()
	window := make([]transcript.Utterance, 0, 6)
	for i := int64(1); i <= 6; i++ {
		window = append(window, transcript.Utterance{
			ID: i, SpeakerID: "alice", SpeakerName: "Alice",
			Text: "turn about the release plan", TopicID: 1,
		})
	}
	return contextmgr.ContextSnapshot{
		MeetingID:    "m-1",
		State:        contextmgr.StateActive,
		Window:       window,
		WindowTokens: 40,
		Segments: []contextmgr.TopicSegment{
			{ID: 1, MeetingID: "m-1", Name: "Planning", StartUtteranceID: 1, EndUtteranceID: 4,
				Summary: "planned the release", KeyDecisions: []string{"ship friday"}},
			{ID: 2, MeetingID: "m-1", Name: "Rollout", StartUtteranceID: 5, EndUtteranceID: -1,
				Summary: "rollout ownership"},
		},
		ActiveTopic: "Rollout",
		Speakers:    []string{"Alice"},
	}
}
