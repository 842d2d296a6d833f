package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/parleyhq/parley/internal/contextmgr"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/prompts"
)

// ActionState carries one extraction request through extract/evaluate/save.
type ActionState struct {
	MeetingID string
	Context   contextmgr.Payload
	Items      []ActionItem
	ExtractErr string
	Passed     bool
	Reason     string
	Attempts   int
	Saved      bool
}

// ActionWorkflow mines commitments out of the recent discussion. Extracted
// items must pass an evaluation gate before saving; rejected extractions
// are retried with the rejection reason fed back, and after maxRetry
// failures the last extraction is saved unverified rather than lost.
type ActionWorkflow struct {
	client   llm.Client
	library  *prompts.Library
	store    ArtifactStore
	logger   *slog.Logger
	maxRetry int
	runnable *Runnable[ActionState]
}

func NewActionWorkflow(client llm.Client, library *prompts.Library, store ArtifactStore, logger *slog.Logger, maxRetry int) (*ActionWorkflow, error) {
	w := &ActionWorkflow{
		client:   client,
		library:  library,
		store:    store,
		logger:   logger,
		maxRetry: maxRetry,
	}
	graph := NewGraph[ActionState]("action_items", 4*(maxRetry+2)).
		AddNode("extract", w.extract).
		AddNode("evaluate", w.evaluate).
		AddNode("save", w.save).
		AddEdge("extract", "evaluate").
		AddRouter("evaluate", w.route, "extract", "save").
		AddEdge("save", End).
		SetEntry("extract")
	runnable, err := graph.Compile()
	if err != nil {
		return nil, err
	}
	w.runnable = runnable
	return w, nil
}

func (w *ActionWorkflow) Run(ctx context.Context, snap contextmgr.ContextSnapshot) (ActionState, error) {
	payload, err := contextmgr.Build(snap, contextmgr.CallActionExtraction)
	if err != nil {
		return ActionState{}, err
	}
	return w.runnable.Run(ctx, ActionState{
		MeetingID: snap.MeetingID,
		Context:   payload,
	})
}

type extractedItem struct {
	Description       string `json:"description"`
	Owner             string `json:"owner"`
	Due               string `json:"due"`
	SourceUtteranceID int64  `json:"source_utterance_id"`
}

type extractReply struct {
	Items []extractedItem `json:"items"`
}

func (w *ActionWorkflow) extract(ctx context.Context, s ActionState) (ActionState, error) {
	s.Attempts++
	prompt := w.library.Render(prompts.ActionExtract, s.Context.Text)
	if s.Reason != "" {
		prompt += fmt.Sprintf("\n\nA previous extraction was rejected: %s\nExtract again, fixing that.", s.Reason)
	}
	raw, err := w.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 1000})
	if err != nil {
		// Extraction failures stay inside the run; the router decides
		// between another attempt and saving nothing.
		w.logger.Warn("action extraction unavailable",
			"meeting_id", s.MeetingID, "attempt", s.Attempts, "error", err)
		s.Items = s.Items[:0]
		s.ExtractErr = err.Error()
		return s, nil
	}
	var reply extractReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		w.logger.Warn("action extraction unparseable",
			"meeting_id", s.MeetingID, "attempt", s.Attempts, "error", err)
		s.Items = s.Items[:0]
		s.ExtractErr = err.Error()
		return s, nil
	}
	s.ExtractErr = ""
	now := time.Now()
	s.Items = s.Items[:0]
	for _, item := range reply.Items {
		if item.Description == "" {
			continue
		}
		s.Items = append(s.Items, ActionItem{
			MeetingID:         s.MeetingID,
			Description:       item.Description,
			Owner:             item.Owner,
			Due:               item.Due,
			SourceUtteranceID: item.SourceUtteranceID,
			CreatedAt:         now,
		})
	}
	return s, nil
}

type evaluateReply struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

func (w *ActionWorkflow) evaluate(ctx context.Context, s ActionState) (ActionState, error) {
	if s.ExtractErr != "" {
		// A failed extraction has nothing worth evaluating.
		s.Passed = false
		return s, nil
	}
	if len(s.Items) == 0 {
		// Nothing extracted is a valid outcome, not a failure.
		s.Passed = true
		return s, nil
	}
	itemsJSON, err := json.Marshal(s.Items)
	if err != nil {
		return s, fmt.Errorf("encode items for evaluation: %w", err)
	}
	prompt := w.library.Render(prompts.ActionEvaluate, s.Context.Text, string(itemsJSON))
	raw, err := w.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 300})
	if err != nil {
		w.logger.Warn("action evaluation unavailable, accepting extraction",
			"meeting_id", s.MeetingID, "error", err)
		s.Passed = true
		return s, nil
	}
	var verdict evaluateReply
	if err := llm.DecodeJSON(raw, &verdict); err != nil {
		w.logger.Warn("action evaluation unparseable, accepting extraction",
			"meeting_id", s.MeetingID, "error", err)
		s.Passed = true
		return s, nil
	}
	s.Passed = verdict.Passed
	s.Reason = verdict.Reason
	return s, nil
}

func (w *ActionWorkflow) route(s ActionState) string {
	if s.Passed || s.Attempts > w.maxRetry {
		return "save"
	}
	return "extract"
}

func (w *ActionWorkflow) save(ctx context.Context, s ActionState) (ActionState, error) {
	for i := range s.Items {
		s.Items[i].Verified = s.Passed
	}
	if !s.Passed && len(s.Items) > 0 {
		w.logger.Warn("action items saved unverified after retry exhaustion",
			"meeting_id", s.MeetingID, "attempts", s.Attempts, "reason", s.Reason)
	}
	if !s.Passed && len(s.Items) == 0 {
		w.logger.Warn("action extraction produced nothing",
			"meeting_id", s.MeetingID, "attempts", s.Attempts, "error", s.ExtractErr)
	}
	if len(s.Items) > 0 && w.store != nil {
		if err := w.store.SaveActionItems(ctx, s.MeetingID, s.Items); err != nil {
			return s, fmt.Errorf("save action items: %w", err)
		}
	}
	s.Saved = len(s.Items) > 0
	return s, nil
}
