package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/contextmgr"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/prompts"
)

// RouteBySize picks the minutes generation path. A meeting goes down the
// long path when its rendered context reaches longTokens or it covered
// more than longTopics topics; everything else takes the cheaper
// single-pass path.
func RouteBySize(tokens, topics, longTokens, longTopics int) string {
	if tokens >= longTokens || topics > longTopics {
		return "extract_long"
	}
	return "extract_short"
}

// MinutesState carries one minutes-generation request.
type MinutesState struct {
	MeetingID string
	Snapshot  contextmgr.ContextSnapshot
	Payload   contextmgr.Payload
	Route     string
	Minutes   Minutes
	GenErr    string
	Grounded  bool
	BadIDs    []int64
	Attempts  int
}

// MinutesWorkflow generates meeting minutes. Short meetings get a single
// extraction pass; long ones are chunked per topic group and merged.
// Generated minutes must pass a groundedness gate: every section has to
// cite evidence utterance IDs that exist in the transcript. Ungrounded
// drafts are regenerated, and after maxRetry failures the draft persists
// flagged Grounded=false instead of being discarded.
type MinutesWorkflow struct {
	client      llm.Client
	library     *prompts.Library
	store       ArtifactStore
	logger      *slog.Logger
	maxRetry    int
	longTokens  int
	longTopics  int
	chunkTopics int
	runnable    *Runnable[MinutesState]
}

type MinutesConfig struct {
	MaxRetry    int
	LongTokens  int
	LongTopics  int
	ChunkTopics int
}

func NewMinutesWorkflow(client llm.Client, library *prompts.Library, store ArtifactStore, logger *slog.Logger, cfg MinutesConfig) (*MinutesWorkflow, error) {
	if cfg.ChunkTopics < 1 {
		cfg.ChunkTopics = 2
	}
	w := &MinutesWorkflow{
		client:      client,
		library:     library,
		store:       store,
		logger:      logger,
		maxRetry:    cfg.MaxRetry,
		longTokens:  cfg.LongTokens,
		longTopics:  cfg.LongTopics,
		chunkTopics: cfg.ChunkTopics,
	}
	graph := NewGraph[MinutesState]("minutes", 4*(cfg.MaxRetry+2)).
		AddNode("plan", w.plan).
		AddNode("extract_short", w.extractShort).
		AddNode("extract_long", w.extractLong).
		AddNode("gate", w.gate).
		AddNode("save", w.save).
		AddRouter("plan", func(s MinutesState) string { return s.Route },
			"extract_short", "extract_long").
		AddEdge("extract_short", "gate").
		AddEdge("extract_long", "gate").
		AddRouter("gate", w.route, "extract_short", "extract_long", "save").
		AddEdge("save", End).
		SetEntry("plan")
	runnable, err := graph.Compile()
	if err != nil {
		return nil, err
	}
	w.runnable = runnable
	return w, nil
}

func (w *MinutesWorkflow) Run(ctx context.Context, snap contextmgr.ContextSnapshot) (MinutesState, error) {
	payload, err := contextmgr.Build(snap, contextmgr.CallSummary)
	if err != nil {
		return MinutesState{}, err
	}
	return w.runnable.Run(ctx, MinutesState{
		MeetingID: snap.MeetingID,
		Snapshot:  snap,
		Payload:   payload,
	})
}

func (w *MinutesWorkflow) plan(ctx context.Context, s MinutesState) (MinutesState, error) {
	s.Route = RouteBySize(s.Payload.Tokens, s.Payload.TopicCount, w.longTokens, w.longTopics)
	return s, nil
}

type minutesReply struct {
	Title    string           `json:"title"`
	Overview string           `json:"overview"`
	Sections []MinutesSection `json:"sections"`
}

func (w *MinutesWorkflow) extractShort(ctx context.Context, s MinutesState) (MinutesState, error) {
	s.Attempts++
	prompt := w.library.Render(prompts.MinutesExtract, w.retryHint(s, s.Payload.Text))
	raw, err := w.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 2000})
	if err != nil {
		// Generation failures stay inside the run; the router decides
		// between another attempt and saving the best draft so far.
		w.logger.Warn("minutes extraction unavailable",
			"meeting_id", s.MeetingID, "attempt", s.Attempts, "error", err)
		s.GenErr = err.Error()
		return s, nil
	}
	var reply minutesReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		w.logger.Warn("minutes reply unparseable",
			"meeting_id", s.MeetingID, "attempt", s.Attempts, "error", err)
		s.GenErr = err.Error()
		return s, nil
	}
	s.GenErr = ""
	s.Minutes = Minutes{
		MeetingID: s.MeetingID,
		Title:     reply.Title,
		Overview:  reply.Overview,
		Sections:  reply.Sections,
	}
	return s, nil
}

// extractLong runs one extraction per topic group and merges the drafts.
func (w *MinutesWorkflow) extractLong(ctx context.Context, s MinutesState) (MinutesState, error) {
	s.Attempts++
	var drafts []string
	for _, group := range chunkSegments(s.Snapshot.Segments, w.chunkTopics) {
		chunkText := renderSegmentGroup(s.Snapshot.MeetingID, group)
		prompt := w.library.Render(prompts.MinutesExtract, w.retryHint(s, chunkText))
		raw, err := w.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 2000})
		if err != nil {
			w.logger.Warn("minutes chunk extraction unavailable",
				"meeting_id", s.MeetingID, "attempt", s.Attempts, "error", err)
			s.GenErr = err.Error()
			return s, nil
		}
		draft := llm.FindFirstJSON(raw)
		if draft == "" {
			w.logger.Warn("minutes chunk reply carried no JSON",
				"meeting_id", s.MeetingID, "attempt", s.Attempts)
			s.GenErr = "minutes chunk reply carried no JSON"
			return s, nil
		}
		drafts = append(drafts, draft)
	}

	prompt := w.library.Render(prompts.MinutesMergeChunk, strings.Join(drafts, "\n\n"))
	raw, err := w.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 3000})
	if err != nil {
		w.logger.Warn("minutes merge unavailable",
			"meeting_id", s.MeetingID, "attempt", s.Attempts, "error", err)
		s.GenErr = err.Error()
		return s, nil
	}
	var reply minutesReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		w.logger.Warn("merged minutes unparseable",
			"meeting_id", s.MeetingID, "attempt", s.Attempts, "error", err)
		s.GenErr = err.Error()
		return s, nil
	}
	s.GenErr = ""
	s.Minutes = Minutes{
		MeetingID: s.MeetingID,
		Title:     reply.Title,
		Overview:  reply.Overview,
		Sections:  reply.Sections,
	}
	return s, nil
}

// gate verifies every cited evidence utterance exists in the transcript.
func (w *MinutesWorkflow) gate(ctx context.Context, s MinutesState) (MinutesState, error) {
	s.BadIDs = s.BadIDs[:0]
	valid := validUtteranceIDs(s.Snapshot)
	for _, section := range s.Minutes.Sections {
		if len(section.EvidenceUtteranceIDs) == 0 {
			// A section with no evidence at all fails the gate outright.
			s.BadIDs = append(s.BadIDs, -1)
			continue
		}
		for _, id := range section.EvidenceUtteranceIDs {
			if !valid(id) {
				s.BadIDs = append(s.BadIDs, id)
			}
		}
	}
	s.Grounded = len(s.Minutes.Sections) > 0 && len(s.BadIDs) == 0
	return s, nil
}

func (w *MinutesWorkflow) route(s MinutesState) string {
	if s.Grounded || s.Attempts > w.maxRetry {
		return "save"
	}
	return s.Route
}

func (w *MinutesWorkflow) save(ctx context.Context, s MinutesState) (MinutesState, error) {
	if s.Minutes.Title == "" && s.Minutes.Overview == "" && len(s.Minutes.Sections) == 0 {
		// No attempt ever produced a draft; there is nothing to persist.
		w.logger.Warn("minutes generation produced no draft",
			"meeting_id", s.MeetingID, "attempts", s.Attempts, "error", s.GenErr)
		return s, nil
	}
	s.Minutes.Grounded = s.Grounded
	s.Minutes.CreatedAt = time.Now()
	if !s.Grounded {
		w.logger.Warn("minutes saved ungrounded after retry exhaustion",
			"meeting_id", s.MeetingID, "attempts", s.Attempts, "bad_ids", s.BadIDs)
	}
	if w.store != nil {
		if err := w.store.SaveMinutes(ctx, &s.Minutes); err != nil {
			return s, fmt.Errorf("save minutes: %w", err)
		}
	}
	return s, nil
}

func (w *MinutesWorkflow) retryHint(s MinutesState, text string) string {
	if s.Attempts <= 1 || len(s.BadIDs) == 0 {
		return text
	}
	return fmt.Sprintf("%s\n\nA previous draft cited utterance IDs that do not exist (%v). Cite only IDs shown in the transcript.", text, s.BadIDs)
}

func chunkSegments(segments []contextmgr.TopicSegment, size int) [][]contextmgr.TopicSegment {
	var groups [][]contextmgr.TopicSegment
	for start := 0; start < len(segments); start += size {
		end := start + size
		if end > len(segments) {
			end = len(segments)
		}
		groups = append(groups, segments[start:end])
	}
	return groups
}

func renderSegmentGroup(meetingID string, group []contextmgr.TopicSegment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Meeting %s (partial)\n", meetingID)
	for _, segment := range group {
		fmt.Fprintf(&b, "## %s (turns %d..%d)\n%s\n",
			segment.Name, segment.StartUtteranceID, segment.EndUtteranceID, segment.Summary)
		for _, decision := range segment.KeyDecisions {
			fmt.Fprintf(&b, "- decision: %s\n", decision)
		}
	}
	return b.String()
}

// validUtteranceIDs returns a membership test over every utterance ID the
// transcript is known to contain, derived from segment ranges and the raw
// window.
func validUtteranceIDs(snap contextmgr.ContextSnapshot) func(int64) bool {
	var maxID int64
	var minID int64 = 1
	for _, segment := range snap.Segments {
		if segment.EndUtteranceID > maxID {
			maxID = segment.EndUtteranceID
		}
	}
	for _, u := range snap.Window {
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	return func(id int64) bool {
		return id >= minID && id <= maxID
	}
}
