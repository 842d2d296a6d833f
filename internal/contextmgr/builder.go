package contextmgr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/transcript"
)

// ContextSnapshot is a point-in-time copy of a meeting's context, detached
// from the manager's lock.
type ContextSnapshot struct {
	MeetingID         string
	State             State
	Window            []transcript.Utterance
	WindowTokens      int
	Segments          []TopicSegment
	ActiveTopic       string
	UnsummarizedTurns []transcript.Utterance
	Speakers          []string
	StartedAt         time.Time
}

// TopicCount counts all segments, open and closed.
func (s ContextSnapshot) TopicCount() int {
	return len(s.Segments)
}

// CallType selects which slice of the meeting context a downstream LLM
// call receives. Each call type gets the smallest payload that can serve
// it, never the whole context.
type CallType string

const (
	CallImmediateResponse CallType = "immediate_response"
	CallSummary           CallType = "summary"
	CallActionExtraction  CallType = "action_extraction"
	CallSearch            CallType = "search"
)

var ErrUnknownCallType = errors.New("unknown call type")

// Payload is a rendered context slice plus the size signals routers use.
type Payload struct {
	Text       string
	Tokens     int
	TopicCount int
}

// Build renders the context slice for callType. Rendering is deterministic:
// the same snapshot and call type always produce byte-identical output.
func Build(snap ContextSnapshot, callType CallType) (Payload, error) {
	var text string
	switch callType {
	case CallImmediateResponse:
		text = buildImmediate(snap)
	case CallSummary:
		text = buildSummary(snap)
	case CallActionExtraction:
		text = buildActionExtraction(snap)
	case CallSearch:
		text = buildSearch(snap)
	default:
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownCallType, callType)
	}
	return Payload{
		Text:       text,
		Tokens:     transcript.EstimateTokens(text),
		TopicCount: snap.TopicCount(),
	}, nil
}

// buildImmediate serves live replies: the raw window for verbatim recall,
// the active topic's summary for standing context, and the speaker roster.
func buildImmediate(snap ContextSnapshot) string {
	var b strings.Builder
	writeHeader(&b, snap)
	if active := activeSegmentOf(snap); active != nil && active.Summary != "" {
		fmt.Fprintf(&b, "## Current topic: %s\n%s\n", active.Name, active.Summary)
		writeItems(&b, "Key points", active.KeyPoints)
		b.WriteString("\n")
	}
	b.WriteString("## Recent transcript\n")
	b.WriteString(renderTurns(snap.Window))
	return b.String()
}

// buildSummary serves whole-meeting views: every topic's summary in
// timeline order plus the still-unsummarized tail, no raw window.
func buildSummary(snap ContextSnapshot) string {
	var b strings.Builder
	writeHeader(&b, snap)
	b.WriteString("## Topic timeline\n")
	for _, segment := range snap.Segments {
		fmt.Fprintf(&b, "### %s (turns %d..%s)\n",
			segment.Name, segment.StartUtteranceID, endLabel(segment))
		if segment.Summary != "" {
			b.WriteString(segment.Summary)
			b.WriteString("\n")
		}
		writeItems(&b, "Key points", segment.KeyPoints)
		writeItems(&b, "Decisions", segment.KeyDecisions)
		writeItems(&b, "Pending", segment.PendingItems)
	}
	if len(snap.UnsummarizedTurns) > 0 {
		b.WriteString("## Not yet summarized\n")
		b.WriteString(renderTurns(snap.UnsummarizedTurns))
	}
	return b.String()
}

// buildActionExtraction serves commitment mining: the raw window where
// owners and deadlines are stated verbatim, plus pending items already
// captured per topic.
func buildActionExtraction(snap ContextSnapshot) string {
	var b strings.Builder
	writeHeader(&b, snap)
	b.WriteString("## Recent transcript\n")
	b.WriteString(renderTurns(snap.Window))
	var pending []string
	for _, segment := range snap.Segments {
		for _, item := range segment.PendingItems {
			pending = append(pending, fmt.Sprintf("%s: %s", segment.Name, item))
		}
	}
	writeItems(&b, "## Pending items from earlier topics", pending)
	return b.String()
}

// buildSearch serves retrieval: compact per-topic index entries, no
// transcript text at all.
func buildSearch(snap ContextSnapshot) string {
	var b strings.Builder
	writeHeader(&b, snap)
	b.WriteString("## Topic index\n")
	for _, segment := range snap.Segments {
		fmt.Fprintf(&b, "- %s", segment.Name)
		if len(segment.Keywords) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(segment.Keywords, ", "))
		}
		b.WriteString("\n")
		for _, decision := range segment.KeyDecisions {
			fmt.Fprintf(&b, "  * %s\n", decision)
		}
	}
	return b.String()
}

func writeHeader(b *strings.Builder, snap ContextSnapshot) {
	fmt.Fprintf(b, "# Meeting %s\n", snap.MeetingID)
	if len(snap.Speakers) > 0 {
		fmt.Fprintf(b, "Participants: %s\n", strings.Join(snap.Speakers, ", "))
	}
	b.WriteString("\n")
}

func writeItems(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func endLabel(segment TopicSegment) string {
	if segment.Open() {
		return "now"
	}
	return fmt.Sprintf("%d", segment.EndUtteranceID)
}

func activeSegmentOf(snap ContextSnapshot) *TopicSegment {
	for i := range snap.Segments {
		if snap.Segments[i].Open() {
			return &snap.Segments[i]
		}
	}
	return nil
}
