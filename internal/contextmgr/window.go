package contextmgr

import (
	"github.com/parleyhq/parley/internal/transcript"
)

// Window is a bounded FIFO buffer of utterances, capped by both turn count
// and estimated token count. Eviction is lossy compaction, not failure:
// Add always succeeds and silently drops the oldest entries when either
// cap is exceeded. The caps hold unconditionally; an utterance larger than
// the whole token budget is itself dropped, leaving the window empty.
type Window struct {
	maxTurns  int
	maxTokens int
	entries   []transcript.Utterance
	tokens    int
	onEvict   func(transcript.Utterance)
}

func NewWindow(maxTurns, maxTokens int) *Window {
	if maxTurns < 1 {
		maxTurns = 1
	}
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &Window{
		maxTurns:  maxTurns,
		maxTokens: maxTokens,
	}
}

// SetEvictHook installs a callback invoked for each evicted utterance.
func (w *Window) SetEvictHook(hook func(transcript.Utterance)) {
	w.onEvict = hook
}

func (w *Window) Add(u transcript.Utterance) {
	w.entries = append(w.entries, u)
	w.tokens += transcript.EstimateTokens(u.Text)

	for len(w.entries) > 0 && (len(w.entries) > w.maxTurns || w.tokens > w.maxTokens) {
		evicted := w.entries[0]
		w.entries = w.entries[1:]
		w.tokens -= transcript.EstimateTokens(evicted.Text)
		if w.onEvict != nil {
			w.onEvict(evicted)
		}
	}
}

// Snapshot returns the current contents, oldest first. The returned slice
// is a copy; callers may hold it across further Adds.
func (w *Window) Snapshot() []transcript.Utterance {
	out := make([]transcript.Utterance, len(w.entries))
	copy(out, w.entries)
	return out
}

func (w *Window) Len() int {
	return len(w.entries)
}

func (w *Window) TokenCount() int {
	return w.tokens
}

func (w *Window) Clear() {
	w.entries = nil
	w.tokens = 0
}
