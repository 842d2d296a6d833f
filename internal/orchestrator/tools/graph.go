package tools

import (
	"context"

	"github.com/parleyhq/parley/internal/graphrepo"
)

// NewGraphTools builds the standard toolset over the meeting graph.
func NewGraphTools(repo graphrepo.Repository) []Tool {
	return []Tool{
		&meetingInfoTool{repo: repo},
		&teamDecisionsTool{repo: repo},
		&searchDecisionsTool{repo: repo},
	}
}

type meetingInfoTool struct {
	repo graphrepo.Repository
}

func (t *meetingInfoTool) Name() string { return "meeting_info" }

func (t *meetingInfoTool) Description() string {
	return "Look up a meeting's team, title and start time. Args: meeting_id."
}

func (t *meetingInfoTool) Call(ctx context.Context, args map[string]any) (string, error) {
	meetingID, err := StringArg(args, "meeting_id")
	if err != nil {
		return "", err
	}
	meta, err := t.repo.MeetingContext(ctx, meetingID)
	if err != nil {
		return "", err
	}
	return EncodeResult(meta)
}

type teamDecisionsTool struct {
	repo graphrepo.Repository
}

func (t *teamDecisionsTool) Name() string { return "team_decisions" }

func (t *teamDecisionsTool) Description() string {
	return "List a team's recent recorded decisions. Args: team_id, limit (optional)."
}

func (t *teamDecisionsTool) Call(ctx context.Context, args map[string]any) (string, error) {
	teamID, err := StringArg(args, "team_id")
	if err != nil {
		return "", err
	}
	decisions, err := t.repo.TeamDecisions(ctx, teamID, IntArg(args, "limit", 20))
	if err != nil {
		return "", err
	}
	return EncodeResult(decisions)
}

type searchDecisionsTool struct {
	repo graphrepo.Repository
}

func (t *searchDecisionsTool) Name() string { return "search_decisions" }

func (t *searchDecisionsTool) Description() string {
	return "Search a team's recorded decisions by text. Args: team_id, query, limit (optional)."
}

func (t *searchDecisionsTool) Call(ctx context.Context, args map[string]any) (string, error) {
	teamID, err := StringArg(args, "team_id")
	if err != nil {
		return "", err
	}
	query, err := StringArg(args, "query")
	if err != nil {
		return "", err
	}
	decisions, err := t.repo.SearchDecisions(ctx, teamID, query, IntArg(args, "limit", 20))
	if err != nil {
		return "", err
	}
	return EncodeResult(decisions)
}
