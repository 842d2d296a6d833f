package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/parleyhq/parley/internal/contextmgr"
	"github.com/parleyhq/parley/internal/graphrepo"
	"github.com/parleyhq/parley/internal/orchestrator"
	"github.com/parleyhq/parley/internal/transcript"
)

type createMeetingRequest struct {
	MeetingID string `json:"meeting_id"`
	TeamID    string `json:"team_id"`
	Title     string `json:"title"`
}

func (r *router) handleCreateMeeting(w http.ResponseWriter, req *http.Request) {
	var payload createMeetingRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if payload.MeetingID == "" || payload.TeamID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "meeting_id and team_id are required"})
		return
	}
	if _, err := r.deps.Registry.Get(payload.MeetingID); err == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "meeting already registered"})
		return
	}

	if err := r.deps.Store.SaveMeeting(req.Context(), graphrepo.MeetingMeta{
		MeetingID: payload.MeetingID,
		TeamID:    payload.TeamID,
		Title:     payload.Title,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		writeError(w, err)
		return
	}

	manager := r.deps.NewManager(payload.MeetingID)
	if err := manager.Start(req.Context()); err != nil {
		writeError(w, err)
		return
	}
	r.deps.Registry.Put(manager)
	writeJSON(w, http.StatusCreated, map[string]string{
		"meeting_id": payload.MeetingID,
		"state":      manager.State().String(),
	})
}

type utteranceRequest struct {
	SpeakerID   string  `json:"speaker_id"`
	SpeakerName string  `json:"speaker_name"`
	Text        string  `json:"text"`
	StartMS     int64   `json:"start_ms"`
	EndMS       int64   `json:"end_ms"`
	Confidence  float64 `json:"confidence"`
}

func (r *router) handleUtterance(w http.ResponseWriter, req *http.Request) {
	manager, err := r.deps.Registry.Get(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var payload utteranceRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	u, err := manager.AddUtterance(req.Context(), transcript.STTSegment{
		SpeakerID:   payload.SpeakerID,
		SpeakerName: payload.SpeakerName,
		Text:        payload.Text,
		StartMS:     payload.StartMS,
		EndMS:       payload.EndMS,
		Confidence:  payload.Confidence,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"utterance_id": u.ID,
		"topic_id":     u.TopicID,
	})
}

func (r *router) handleEndMeeting(w http.ResponseWriter, req *http.Request) {
	manager, err := r.deps.Registry.Get(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := manager.End(req.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": manager.State().String()})
}

func (r *router) handleRecoverMeeting(w http.ResponseWriter, req *http.Request) {
	meetingID := req.PathValue("id")
	if _, err := r.deps.Registry.Get(meetingID); err == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "meeting already registered"})
		return
	}
	manager := r.deps.NewManager(meetingID)
	if err := manager.LoadFromStore(req.Context(), r.deps.Config.RecoveryUtteranceLimit); err != nil {
		writeError(w, err)
		return
	}
	r.deps.Registry.Put(manager)
	snap := manager.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      manager.State().String(),
		"topics":     snap.TopicCount(),
		"utterances": len(snap.Window),
	})
}

func (r *router) handleContext(w http.ResponseWriter, req *http.Request) {
	manager, err := r.deps.Registry.Get(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	callType := contextmgr.CallType(req.URL.Query().Get("call_type"))
	if callType == "" {
		callType = contextmgr.CallImmediateResponse
	}
	payload, err := contextmgr.Build(manager.Snapshot(), callType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"call_type":   callType,
		"text":        payload.Text,
		"tokens":      payload.Tokens,
		"topic_count": payload.TopicCount,
	})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, contextmgr.ErrMeetingNotFound),
		errors.Is(err, orchestrator.ErrJobNotFound),
		errors.Is(err, graphrepo.ErrMeetingUnknown):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error(), "code": "NOT_FOUND"})
	case errors.Is(err, contextmgr.ErrNotActive),
		errors.Is(err, contextmgr.ErrAlreadyBegun):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "CONFLICT"})
	case errors.Is(err, transcript.ErrEmptyText),
		errors.Is(err, contextmgr.ErrUnknownCallType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "code": "BAD_REQUEST"})
	case errors.Is(err, orchestrator.ErrQueueFull):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error(), "code": "QUEUE_FULL"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error(), "code": "INTERNAL"})
	}
}
