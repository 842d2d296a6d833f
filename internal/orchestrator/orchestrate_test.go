package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/orchestrator/tools"
	"github.com/parleyhq/parley/internal/prompts"
)

type echoTool struct {
	name  string
	calls int
	reply string
	err   error
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "test tool" }

func (t *echoTool) Call(ctx context.Context, args map[string]any) (string, error) {
	t.calls++
	return t.reply, t.err
}

func TestOrchestrate_AnswersWithoutToolsWhenPlanSaysSo(t *testing.T) {
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.Request) (string, error) {
			if strings.Contains(req.Prompt, "planning how to answer") {
				return `{"needs_tools": false}`, nil
			}
			return "direct answer", nil
		},
	}
	registry := tools.NewRegistry()
	w, err := NewOrchestrateWorkflow(client, prompts.NewLibrary(), registry, testLogger(), 2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := w.Run(context.Background(), testSnapshot(t), "what did we decide?")
	if err != nil {
		t.Fatal(err)
	}
	if out.Answer != "direct answer" {
		t.Errorf("unexpected answer %q", out.Answer)
	}
	if len(out.ToolResults) != 0 {
		t.Error("no tools should have run")
	}
}

func TestOrchestrate_ExecutesPlannedToolsAndAccumulatesResults(t *testing.T) {
	tool := &echoTool{name: "team_decisions", reply: `[{"text": "ship friday"}]`}
	registry := tools.NewRegistry()
	registry.Register(tool)

	var plans int
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.Request) (string, error) {
			if strings.Contains(req.Prompt, "planning how to answer") {
				plans++
				if plans == 1 {
					return `{"needs_tools": true, "tool_calls": [{"tool": "team_decisions", "args": {"team_id": "t-1"}}]}`, nil
				}
				return `{"needs_tools": false}`, nil
			}
			if !strings.Contains(req.Prompt, "ship friday") {
				t.Error("answer prompt must include tool results")
			}
			return "we decided to ship friday", nil
		},
	}
	w, err := NewOrchestrateWorkflow(client, prompts.NewLibrary(), registry, testLogger(), 2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := w.Run(context.Background(), testSnapshot(t), "what did we decide?")
	if err != nil {
		t.Fatal(err)
	}
	if tool.calls != 1 {
		t.Errorf("expected 1 tool call, got %d", tool.calls)
	}
	if len(out.ToolResults) != 1 || out.ToolResults[0].Output == "" {
		t.Fatalf("expected accumulated tool result, got %+v", out.ToolResults)
	}
	if out.Answer != "we decided to ship friday" {
		t.Errorf("unexpected answer %q", out.Answer)
	}
}

func TestOrchestrate_ToolFailureBecomesResultNotRunFailure(t *testing.T) {
	registry := tools.NewRegistry()

	var plans int
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.Request) (string, error) {
			if strings.Contains(req.Prompt, "planning how to answer") {
				plans++
				if plans == 1 {
					return `{"needs_tools": true, "tool_calls": [{"tool": "no_such_tool", "args": {}}]}`, nil
				}
				return `{"needs_tools": false}`, nil
			}
			return "answered anyway", nil
		},
	}
	w, err := NewOrchestrateWorkflow(client, prompts.NewLibrary(), registry, testLogger(), 2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := w.Run(context.Background(), testSnapshot(t), "question")
	if err != nil {
		t.Fatal(err)
	}
	if len(out.ToolResults) != 1 || out.ToolResults[0].Err == "" {
		t.Fatalf("expected a recorded tool error, got %+v", out.ToolResults)
	}
	if out.Answer != "answered anyway" {
		t.Errorf("unexpected answer %q", out.Answer)
	}
}

func TestOrchestrate_PlanningRoundsAreBounded(t *testing.T) {
	tool := &echoTool{name: "team_decisions", reply: "[]"}
	registry := tools.NewRegistry()
	registry.Register(tool)

	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.Request) (string, error) {
			if strings.Contains(req.Prompt, "planning how to answer") {
				// The planner never stops asking for tools.
				return `{"needs_tools": true, "tool_calls": [{"tool": "team_decisions", "args": {"team_id": "t-1"}}]}`, nil
			}
			return "final", nil
		},
	}
	w, err := NewOrchestrateWorkflow(client, prompts.NewLibrary(), registry, testLogger(), 2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := w.Run(context.Background(), testSnapshot(t), "question")
	if err != nil {
		t.Fatal(err)
	}
	if out.Rounds > 2 {
		t.Errorf("planning rounds must be bounded at 2, got %d", out.Rounds)
	}
	if out.Answer != "final" {
		t.Errorf("a greedy planner must still end in an answer, got %q", out.Answer)
	}
}

func TestOrchestrate_DeadModelStillYieldsDegradedAnswer(t *testing.T) {
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.Request) (string, error) {
			return "", llm.ErrUnavailable
		},
	}
	w, err := NewOrchestrateWorkflow(client, prompts.NewLibrary(), tools.NewRegistry(), testLogger(), 2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := w.Run(context.Background(), testSnapshot(t), "question")
	if err != nil {
		t.Fatalf("an unreachable model must degrade the run, not fail it: %v", err)
	}
	if out.AnswerErr == "" {
		t.Error("the failure must be recorded on the state")
	}
	if out.Answer == "" {
		t.Fatal("the caller must still receive a reply")
	}
}

func TestOrchestrate_UnparseablePlanDegradesToDirectAnswer(t *testing.T) {
	client := &mockClient{
		completeFn: func(ctx context.Context, req llm.Request) (string, error) {
			if strings.Contains(req.Prompt, "planning how to answer") {
				return "I cannot produce JSON today", nil
			}
			return "fallback answer", nil
		},
	}
	w, err := NewOrchestrateWorkflow(client, prompts.NewLibrary(), tools.NewRegistry(), testLogger(), 2)
	if err != nil {
		t.Fatal(err)
	}
	out, err := w.Run(context.Background(), testSnapshot(t), "question")
	if err != nil {
		t.Fatal(err)
	}
	if out.Answer != "fallback answer" {
		t.Errorf("unexpected answer %q", out.Answer)
	}
}
