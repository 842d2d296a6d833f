package contextmgr

import (
	"sort"

	"github.com/parleyhq/parley/internal/transcript"
)

// SpeakerState is the per-participant view: identity plus a short bounded
// window of their own recent turns.
type SpeakerState struct {
	SpeakerID   string
	SpeakerName string
	TurnCount   int
	TalkMS      int64
	recent      *Window
}

// Recent returns the speaker's recent utterances, oldest first.
func (s *SpeakerState) Recent() []transcript.Utterance {
	return s.recent.Snapshot()
}

// SpeakerTracker maintains one SpeakerState per participant seen so far.
// Not safe for concurrent use; the owning manager serializes access.
type SpeakerTracker struct {
	maxTurns  int
	maxTokens int
	speakers  map[string]*SpeakerState
}

func NewSpeakerTracker(maxTurns, maxTokens int) *SpeakerTracker {
	return &SpeakerTracker{
		maxTurns:  maxTurns,
		maxTokens: maxTokens,
		speakers:  map[string]*SpeakerState{},
	}
}

func (t *SpeakerTracker) Observe(u transcript.Utterance) {
	state, ok := t.speakers[u.SpeakerID]
	if !ok {
		state = &SpeakerState{
			SpeakerID:   u.SpeakerID,
			SpeakerName: u.SpeakerName,
			recent:      NewWindow(t.maxTurns, t.maxTokens),
		}
		t.speakers[u.SpeakerID] = state
	}
	if u.SpeakerName != "" {
		state.SpeakerName = u.SpeakerName
	}
	state.TurnCount++
	state.TalkMS += u.DurationMS()
	state.recent.Add(u)
}

func (t *SpeakerTracker) Get(speakerID string) (*SpeakerState, bool) {
	state, ok := t.speakers[speakerID]
	return state, ok
}

// Names returns all known speaker names, sorted for stable output.
func (t *SpeakerTracker) Names() []string {
	names := make([]string, 0, len(t.speakers))
	for _, state := range t.speakers {
		names = append(names, state.SpeakerName)
	}
	sort.Strings(names)
	return names
}

func (t *SpeakerTracker) Count() int {
	return len(t.speakers)
}
