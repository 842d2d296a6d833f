package contextmgr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/prompts"
)

// Summarizer maintains topic summaries recursively: the first refresh of a
// segment summarizes its raw turns, every later refresh merges new turns
// into the existing summary instead of re-reading the whole segment.
type Summarizer struct {
	client   llm.Client
	library  *prompts.Library
	logger   *slog.Logger
	maxItems int
	maxTok   int
}

func NewSummarizer(client llm.Client, library *prompts.Library, logger *slog.Logger, maxItems, maxTokens int) *Summarizer {
	if maxItems < 1 {
		maxItems = 8
	}
	if maxTokens < 1 {
		maxTokens = 600
	}
	return &Summarizer{
		client:   client,
		library:  library,
		logger:   logger,
		maxItems: maxItems,
		maxTok:   maxTokens,
	}
}

type summaryReply struct {
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	KeyDecisions []string `json:"key_decisions"`
	PendingItems []string `json:"pending_items"`
	Participants []string `json:"participants"`
	Keywords     []string `json:"keywords"`
}

// Refresh folds the segment's pending buffer into its summary. On success
// the buffer is cleared; on any failure the segment and buffer are left
// untouched so the turns are retried on the next trigger. Refresh with an
// empty buffer is a no-op.
func (s *Summarizer) Refresh(ctx context.Context, active *activeSegment) error {
	pending := active.pending.Snapshot()
	if len(pending) == 0 {
		return nil
	}
	segment := active.segment

	var prompt string
	if segment.Summary == "" {
		prompt = s.library.Render(prompts.SummaryFirstPass,
			segment.Name, renderTurns(pending), s.maxItems, s.maxTok)
	} else {
		prompt = s.library.Render(prompts.SummaryMerge,
			segment.Name, segment.Summary, renderList(segment.KeyPoints),
			renderTurns(pending), s.maxItems, s.maxTok)
	}

	raw, err := s.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: s.maxTok * 2})
	if err != nil {
		return fmt.Errorf("summarize topic %q: %w", segment.Name, err)
	}
	var reply summaryReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return fmt.Errorf("decode summary for topic %q: %w", segment.Name, err)
	}
	if strings.TrimSpace(reply.Summary) == "" {
		return fmt.Errorf("summarize topic %q: empty summary in reply", segment.Name)
	}

	if dropped := active.droppedSinceSummary(); dropped > 0 {
		s.logger.Warn("summary refreshed from an incomplete buffer",
			"topic", segment.Name, "dropped_turns", dropped)
	}

	segment.Summary = reply.Summary
	segment.KeyPoints = capItems(reply.KeyPoints, s.maxItems)
	segment.KeyDecisions = capItems(reply.KeyDecisions, s.maxItems)
	segment.PendingItems = capItems(reply.PendingItems, s.maxItems)
	if len(reply.Participants) > 0 {
		segment.Participants = capItems(reply.Participants, s.maxItems)
	}
	if len(reply.Keywords) > 0 {
		segment.Keywords = capItems(reply.Keywords, s.maxItems)
	}
	segment.UpdatedAt = time.Now()
	active.markSummarized(segment.UpdatedAt)
	return nil
}

func capItems(items []string, max int) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			cleaned = append(cleaned, item)
		}
	}
	if len(cleaned) > max {
		cleaned = cleaned[:max]
	}
	return cleaned
}

func renderList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}
