package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parleyhq/parley/internal/contextmgr"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/orchestrator/tools"
	"github.com/parleyhq/parley/internal/prompts"
)

// ToolResult records one executed tool call; results accumulate on the
// state by appending, never replacing.
type ToolResult struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
	Err    string `json:"error,omitempty"`
}

type plannedCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

type planReply struct {
	NeedsTools bool          `json:"needs_tools"`
	ToolCalls  []plannedCall `json:"tool_calls"`
	Rationale  string        `json:"rationale"`
}

// OrchestrateState carries one open-ended request across plan, tool
// execution and answer generation.
type OrchestrateState struct {
	MeetingID   string
	Request     string
	Context     contextmgr.Payload
	Plan        planReply
	ToolResults []ToolResult
	Rounds      int
	Answer      string
	AnswerErr   string
}

// OrchestrateWorkflow answers open-ended requests about a meeting. The
// planner decides whether graph tools are needed; tool results feed a
// second planning round (bounded), then the answer node writes the reply
// from context plus everything the tools returned.
type OrchestrateWorkflow struct {
	client    llm.Client
	library   *prompts.Library
	registry  *tools.Registry
	logger    *slog.Logger
	maxRounds int
	runnable  *Runnable[OrchestrateState]
}

func NewOrchestrateWorkflow(client llm.Client, library *prompts.Library, registry *tools.Registry, logger *slog.Logger, maxRounds int) (*OrchestrateWorkflow, error) {
	if maxRounds < 1 {
		maxRounds = 2
	}
	w := &OrchestrateWorkflow{
		client:    client,
		library:   library,
		registry:  registry,
		logger:    logger,
		maxRounds: maxRounds,
	}
	graph := NewGraph[OrchestrateState]("orchestrate", 3*(maxRounds+2)).
		AddNode("plan", w.plan).
		AddNode("execute", w.execute).
		AddNode("answer", w.answer).
		AddRouter("plan", w.routePlan, "execute", "answer").
		AddRouter("execute", w.routeExecute, "plan", "answer").
		AddEdge("answer", End).
		SetEntry("plan")
	runnable, err := graph.Compile()
	if err != nil {
		return nil, err
	}
	w.runnable = runnable
	return w, nil
}

func (w *OrchestrateWorkflow) Run(ctx context.Context, snap contextmgr.ContextSnapshot, request string) (OrchestrateState, error) {
	payload, err := contextmgr.Build(snap, contextmgr.CallSearch)
	if err != nil {
		return OrchestrateState{}, err
	}
	return w.runnable.Run(ctx, OrchestrateState{
		MeetingID: snap.MeetingID,
		Request:   request,
		Context:   payload,
	})
}

func (w *OrchestrateWorkflow) plan(ctx context.Context, s OrchestrateState) (OrchestrateState, error) {
	s.Rounds++
	contextText := s.Context.Text
	if len(s.ToolResults) > 0 {
		contextText += "\n\nTool results so far:\n" + renderToolResults(s.ToolResults)
	}
	prompt := w.library.Render(prompts.OrchestratePlan, s.Request, contextText, w.registry.Catalog())
	raw, err := w.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 800})
	if err != nil {
		// An unavailable planner degrades to answering from context alone.
		w.logger.Warn("planner unavailable, answering without tools",
			"meeting_id", s.MeetingID, "error", err)
		s.Plan = planReply{}
		return s, nil
	}
	var reply planReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		// An unparseable plan degrades to answering from context alone.
		w.logger.Warn("plan unparseable, answering without tools",
			"meeting_id", s.MeetingID, "error", err)
		reply = planReply{}
	}
	s.Plan = reply
	return s, nil
}

func (w *OrchestrateWorkflow) routePlan(s OrchestrateState) string {
	if s.Plan.NeedsTools && len(s.Plan.ToolCalls) > 0 && s.Rounds <= w.maxRounds {
		return "execute"
	}
	return "answer"
}

func (w *OrchestrateWorkflow) execute(ctx context.Context, s OrchestrateState) (OrchestrateState, error) {
	for _, call := range s.Plan.ToolCalls {
		output, err := w.registry.Call(ctx, call.Tool, call.Args)
		result := ToolResult{Tool: call.Tool, Output: output}
		if err != nil {
			// Tool failures are data for the planner, not run failures.
			result.Err = err.Error()
			w.logger.Warn("tool call failed",
				"meeting_id", s.MeetingID, "tool", call.Tool, "error", err)
		}
		s.ToolResults = append(s.ToolResults, result)
	}
	return s, nil
}

func (w *OrchestrateWorkflow) routeExecute(s OrchestrateState) string {
	if s.Rounds < w.maxRounds {
		return "plan"
	}
	return "answer"
}

func (w *OrchestrateWorkflow) answer(ctx context.Context, s OrchestrateState) (OrchestrateState, error) {
	prompt := w.library.Render(prompts.OrchestrateAnswer,
		s.Request, s.Context.Text, renderToolResults(s.ToolResults))
	reply, err := w.client.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 1200})
	if err != nil {
		// The run still ends in a (degraded) answer rather than a fault.
		w.logger.Warn("answer generation unavailable",
			"meeting_id", s.MeetingID, "error", err)
		s.AnswerErr = err.Error()
		s.Answer = "I could not put together an answer just now."
		return s, nil
	}
	s.Answer = strings.TrimSpace(reply)
	return s, nil
}

func renderToolResults(results []ToolResult) string {
	if len(results) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, result := range results {
		if result.Err != "" {
			fmt.Fprintf(&b, "%s: ERROR %s\n", result.Tool, result.Err)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", result.Tool, result.Output)
	}
	return b.String()
}
