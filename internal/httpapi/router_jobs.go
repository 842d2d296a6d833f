package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/parleyhq/parley/internal/orchestrator"
)

type mentionRequest struct {
	Question string `json:"question"`
}

func (r *router) handleMention(w http.ResponseWriter, req *http.Request) {
	manager, err := r.deps.Registry.Get(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var payload mentionRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	snap := manager.Snapshot()
	r.submitJob(w, orchestrator.Job{
		MeetingID: snap.MeetingID,
		Kind:      orchestrator.JobKindMention,
		Run: func(ctx context.Context) (any, error) {
			out, err := r.deps.Workflows.Mention.Run(ctx, snap, payload.Question)
			if err != nil {
				return nil, err
			}
			return map[string]any{"answer": out.Answer, "attempts": out.Attempts}, nil
		},
	})
}

func (r *router) handleActions(w http.ResponseWriter, req *http.Request) {
	manager, err := r.deps.Registry.Get(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	snap := manager.Snapshot()
	r.submitJob(w, orchestrator.Job{
		MeetingID: snap.MeetingID,
		Kind:      orchestrator.JobKindActions,
		Run: func(ctx context.Context) (any, error) {
			out, err := r.deps.Workflows.Actions.Run(ctx, snap)
			if err != nil {
				return nil, err
			}
			return map[string]any{"items": out.Items, "verified": out.Passed}, nil
		},
	})
}

func (r *router) handleMinutes(w http.ResponseWriter, req *http.Request) {
	manager, err := r.deps.Registry.Get(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	snap := manager.Snapshot()
	r.submitJob(w, orchestrator.Job{
		MeetingID: snap.MeetingID,
		Kind:      orchestrator.JobKindMinutes,
		Run: func(ctx context.Context) (any, error) {
			out, err := r.deps.Workflows.Minutes.Run(ctx, snap)
			if err != nil {
				return nil, err
			}
			return out.Minutes, nil
		},
	})
}

type orchestrateRequest struct {
	Request string `json:"request"`
}

func (r *router) handleOrchestrate(w http.ResponseWriter, req *http.Request) {
	manager, err := r.deps.Registry.Get(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var payload orchestrateRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Request == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request is required"})
		return
	}

	snap := manager.Snapshot()
	r.submitJob(w, orchestrator.Job{
		MeetingID: snap.MeetingID,
		Kind:      orchestrator.JobKindResearch,
		Run: func(ctx context.Context) (any, error) {
			out, err := r.deps.Workflows.Orchestrate.Run(ctx, snap, payload.Request)
			if err != nil {
				return nil, err
			}
			return map[string]any{"answer": out.Answer, "tool_results": out.ToolResults}, nil
		},
	})
}

func (r *router) submitJob(w http.ResponseWriter, job orchestrator.Job) {
	queued, err := r.deps.Engine.Submit(job)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": queued.ID,
		"kind":   string(queued.Kind),
	})
}
