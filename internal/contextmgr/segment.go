package contextmgr

import (
	"time"

	"github.com/parleyhq/parley/internal/transcript"
)

// TopicSegment is the L1 unit: one contiguous stretch of the meeting that
// stayed on a single topic, with a recursively maintained summary.
type TopicSegment struct {
	ID               int64     `json:"id"`
	MeetingID        string    `json:"meeting_id"`
	Name             string    `json:"name"`
	Keywords         []string  `json:"keywords,omitempty"`
	StartUtteranceID int64     `json:"start_utterance_id"`
	EndUtteranceID   int64     `json:"end_utterance_id"` // -1 while the segment is open
	Summary          string    `json:"summary"`
	KeyPoints        []string  `json:"key_points,omitempty"`
	KeyDecisions     []string  `json:"key_decisions,omitempty"`
	PendingItems     []string  `json:"pending_items,omitempty"`
	Participants     []string  `json:"participants,omitempty"`
	TurnCount        int       `json:"turn_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *TopicSegment) Open() bool {
	return s.EndUtteranceID < 0
}

// activeSegment pairs the open TopicSegment with the buffer of utterances
// that have arrived since its summary was last refreshed. The buffer is a
// bounded Window: if summarization falls far enough behind, the oldest
// unsummarized turns are dropped rather than growing without bound.
type activeSegment struct {
	segment       *TopicSegment
	pending       *Window
	lastSummaryAt time.Time
	dropped       int
}

func newActiveSegment(segment *TopicSegment, maxTurns, maxTokens int) *activeSegment {
	active := &activeSegment{
		segment:       segment,
		pending:       NewWindow(maxTurns, maxTokens),
		lastSummaryAt: time.Now(),
	}
	active.pending.SetEvictHook(func(transcript.Utterance) {
		active.dropped++
	})
	return active
}

func (a *activeSegment) add(u transcript.Utterance) {
	a.pending.Add(u)
	a.segment.TurnCount++
	a.segment.UpdatedAt = u.Timestamp
	if a.segment.Participants == nil || !containsString(a.segment.Participants, u.SpeakerName) {
		a.segment.Participants = append(a.segment.Participants, u.SpeakerName)
	}
}

// droppedSinceSummary reports utterances evicted from the pending buffer
// before they were folded into the summary. Nonzero means the last refresh
// worked from an incomplete buffer.
func (a *activeSegment) droppedSinceSummary() int {
	return a.dropped
}

func (a *activeSegment) markSummarized(at time.Time) {
	a.pending.Clear()
	a.lastSummaryAt = at
	a.dropped = 0
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
