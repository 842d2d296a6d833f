package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/contextmgr"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/orchestrator"
	"github.com/parleyhq/parley/internal/store"
)

// Workflows bundles the runnable workflows the API dispatches onto the
// engine.
type Workflows struct {
	Mention     *orchestrator.MentionWorkflow
	Actions     *orchestrator.ActionWorkflow
	Minutes     *orchestrator.MinutesWorkflow
	Orchestrate *orchestrator.OrchestrateWorkflow
}

type Dependencies struct {
	Config     config.Config
	Store      *store.Store
	Registry   *contextmgr.Registry
	Engine     *orchestrator.Engine
	Hub        *events.Hub
	Workflows  Workflows
	Logger     *slog.Logger
	NewManager func(meetingID string) *contextmgr.Manager
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.handleHealth)
	mux.HandleFunc("GET /readyz", rt.handleReady)
	mux.HandleFunc("POST /api/v1/meetings", rt.handleCreateMeeting)
	mux.HandleFunc("POST /api/v1/meetings/{id}/utterances", rt.handleUtterance)
	mux.HandleFunc("POST /api/v1/meetings/{id}/end", rt.handleEndMeeting)
	mux.HandleFunc("POST /api/v1/meetings/{id}/recover", rt.handleRecoverMeeting)
	mux.HandleFunc("GET /api/v1/meetings/{id}/context", rt.handleContext)
	mux.HandleFunc("POST /api/v1/meetings/{id}/mention", rt.handleMention)
	mux.HandleFunc("POST /api/v1/meetings/{id}/actions", rt.handleActions)
	mux.HandleFunc("POST /api/v1/meetings/{id}/minutes", rt.handleMinutes)
	mux.HandleFunc("POST /api/v1/meetings/{id}/orchestrate", rt.handleOrchestrate)
	mux.HandleFunc("GET /api/v1/meetings/{id}/events", rt.handleEvents)
	mux.HandleFunc("GET /api/v1/jobs/{id}", rt.handleJob)
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleEvents(w http.ResponseWriter, req *http.Request) {
	meetingID := req.PathValue("id")
	if _, err := r.deps.Registry.Get(meetingID); err != nil {
		writeError(w, err)
		return
	}
	r.deps.Hub.Subscribe(w, req, meetingID)
}

func (r *router) handleJob(w http.ResponseWriter, req *http.Request) {
	result, err := r.deps.Engine.Result(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
