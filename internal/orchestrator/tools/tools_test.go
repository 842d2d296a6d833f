package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/graphrepo"
)

type fakeRepo struct {
	meta      graphrepo.MeetingMeta
	metaErr   error
	decisions []graphrepo.Decision
}

func (f *fakeRepo) SaveMeeting(ctx context.Context, meta graphrepo.MeetingMeta) error { return nil }

func (f *fakeRepo) MeetingContext(ctx context.Context, meetingID string) (graphrepo.MeetingMeta, error) {
	return f.meta, f.metaErr
}

func (f *fakeRepo) SaveDecision(ctx context.Context, decision graphrepo.Decision) (int64, error) {
	return 1, nil
}

func (f *fakeRepo) TeamDecisions(ctx context.Context, teamID string, limit int) ([]graphrepo.Decision, error) {
	return f.decisions, nil
}

func (f *fakeRepo) SearchDecisions(ctx context.Context, teamID, query string, limit int) ([]graphrepo.Decision, error) {
	var out []graphrepo.Decision
	for _, d := range f.decisions {
		if strings.Contains(d.Text, query) {
			out = append(out, d)
		}
	}
	return out, nil
}

func testRegistry(repo graphrepo.Repository) *Registry {
	r := NewRegistry()
	for _, tool := range NewGraphTools(repo) {
		r.Register(tool)
	}
	return r
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Call(context.Background(), "ghost", nil); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistry_CatalogIsStable(t *testing.T) {
	r := testRegistry(&fakeRepo{})
	first := r.Catalog()
	second := r.Catalog()
	if first != second {
		t.Fatal("catalog rendering must be stable")
	}
	if !strings.Contains(first, "team_decisions") {
		t.Errorf("catalog missing tool: %s", first)
	}
}

func TestMeetingInfoTool(t *testing.T) {
	repo := &fakeRepo{meta: graphrepo.MeetingMeta{
		MeetingID: "m-1", TeamID: "t-1", Title: "Release sync", StartedAt: time.Now(),
	}}
	r := testRegistry(repo)

	out, err := r.Call(context.Background(), "meeting_info", map[string]any{"meeting_id": "m-1"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Release sync") {
		t.Errorf("unexpected output %s", out)
	}

	if _, err := r.Call(context.Background(), "meeting_info", map[string]any{}); err == nil {
		t.Fatal("missing meeting_id must fail")
	}
}

func TestSearchDecisionsTool(t *testing.T) {
	repo := &fakeRepo{decisions: []graphrepo.Decision{
		{ID: 1, TeamID: "t-1", Text: "ship on friday"},
		{ID: 2, TeamID: "t-1", Text: "hire two engineers"},
	}}
	r := testRegistry(repo)

	out, err := r.Call(context.Background(), "search_decisions", map[string]any{
		"team_id": "t-1", "query": "friday", "limit": float64(5),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ship on friday") || strings.Contains(out, "hire two") {
		t.Errorf("unexpected search output %s", out)
	}
}

func TestIntArg(t *testing.T) {
	if got := IntArg(map[string]any{"limit": float64(7)}, "limit", 3); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := IntArg(map[string]any{}, "limit", 3); got != 3 {
		t.Errorf("expected fallback 3, got %d", got)
	}
	if got := IntArg(map[string]any{"limit": "many"}, "limit", 3); got != 3 {
		t.Errorf("expected fallback on bad type, got %d", got)
	}
}
