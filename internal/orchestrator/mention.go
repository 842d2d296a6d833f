package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parleyhq/parley/internal/contextmgr"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/prompts"
)

// MentionState carries one "assistant was mentioned" request through the
// draft/validate loop.
type MentionState struct {
	MeetingID string
	Question  string
	Context   contextmgr.Payload
	Draft     string
	DraftErr  string
	Valid     bool
	Reason    string
	Attempts  int
	Answer    string
}

// MentionWorkflow answers a participant who addressed the assistant
// directly during a live meeting. A drafted reply must pass a validation
// check against the meeting context; failed drafts are retried, and after
// maxRetry failures the best draft ships with a caveat rather than
// leaving the participant unanswered.
type MentionWorkflow struct {
	client   llm.Client
	library  *prompts.Library
	logger   *slog.Logger
	maxRetry int
	runnable *Runnable[MentionState]
}

func NewMentionWorkflow(client llm.Client, library *prompts.Library, logger *slog.Logger, maxRetry int) (*MentionWorkflow, error) {
	w := &MentionWorkflow{
		client:   client,
		library:  library,
		logger:   logger,
		maxRetry: maxRetry,
	}
	graph := NewGraph[MentionState]("mention", 4*(maxRetry+2)).
		AddNode("draft", w.draft).
		AddNode("validate", w.validate).
		AddNode("finalize", w.finalize).
		AddEdge("draft", "validate").
		AddRouter("validate", w.route, "draft", "finalize").
		AddEdge("finalize", End).
		SetEntry("draft")
	runnable, err := graph.Compile()
	if err != nil {
		return nil, err
	}
	w.runnable = runnable
	return w, nil
}

// Run answers the question from the given context snapshot.
func (w *MentionWorkflow) Run(ctx context.Context, snap contextmgr.ContextSnapshot, question string) (MentionState, error) {
	payload, err := contextmgr.Build(snap, contextmgr.CallImmediateResponse)
	if err != nil {
		return MentionState{}, err
	}
	return w.runnable.Run(ctx, MentionState{
		MeetingID: snap.MeetingID,
		Question:  question,
		Context:   payload,
	})
}

func (w *MentionWorkflow) draft(ctx context.Context, s MentionState) (MentionState, error) {
	s.Attempts++
	prompt := fmt.Sprintf("%s\n\nQuestion: %s", s.Context.Text, s.Question)
	if s.Reason != "" {
		prompt += fmt.Sprintf("\n\nA previous draft was rejected: %s\nWrite a better reply.", s.Reason)
	}
	reply, err := w.client.Complete(ctx, llm.Request{
		SystemPrompt: w.library.Get(prompts.MentionSystem),
		Prompt:       prompt,
		MaxTokens:    600,
	})
	if err != nil {
		// A dead model stays inside the run as an empty draft; the
		// router decides between another attempt and a degraded answer.
		w.logger.Warn("mention draft unavailable",
			"meeting_id", s.MeetingID, "attempt", s.Attempts, "error", err)
		s.Draft = ""
		s.DraftErr = err.Error()
		return s, nil
	}
	s.Draft = strings.TrimSpace(reply)
	s.DraftErr = ""
	return s, nil
}

type mentionVerdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

func (w *MentionWorkflow) validate(ctx context.Context, s MentionState) (MentionState, error) {
	if s.Draft == "" {
		s.Valid = false
		s.Reason = "no draft was produced"
		return s, nil
	}
	prompt := w.library.Render(prompts.MentionValidate, s.Question, s.Draft, s.Context.Text)
	raw, err := w.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 300})
	if err != nil {
		// A dead validator must not block the answer path; the draft
		// proceeds unvalidated.
		w.logger.Warn("mention validation unavailable, accepting draft",
			"meeting_id", s.MeetingID, "error", err)
		s.Valid = true
		return s, nil
	}
	var verdict mentionVerdict
	if err := llm.DecodeJSON(raw, &verdict); err != nil {
		w.logger.Warn("mention validation unparseable, accepting draft",
			"meeting_id", s.MeetingID, "error", err)
		s.Valid = true
		return s, nil
	}
	s.Valid = verdict.Valid
	s.Reason = verdict.Reason
	return s, nil
}

func (w *MentionWorkflow) route(s MentionState) string {
	if s.Valid || s.Attempts > w.maxRetry {
		return "finalize"
	}
	return "draft"
}

func (w *MentionWorkflow) finalize(ctx context.Context, s MentionState) (MentionState, error) {
	if s.Draft == "" {
		w.logger.Warn("mention reply degraded, no draft survived",
			"meeting_id", s.MeetingID, "attempts", s.Attempts, "error", s.DraftErr)
		s.Answer = "I could not put together an answer just now."
		return s, nil
	}
	s.Answer = s.Draft
	if !s.Valid {
		w.logger.Warn("mention reply shipped after retry exhaustion",
			"meeting_id", s.MeetingID, "attempts", s.Attempts, "reason", s.Reason)
		s.Answer = s.Draft + "\n\n(I could not fully verify this against the meeting context.)"
	}
	return s, nil
}
