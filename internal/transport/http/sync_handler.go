package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"quiz-sync-service/internal/app"
	"quiz-sync-service/internal/domain"
)

// SyncHandler exposes the progress synchronization surface over JSON.
type SyncHandler struct {
	service    *app.SyncService
	principals PrincipalResolver
}

func NewSyncHandler(service *app.SyncService, principals PrincipalResolver) *SyncHandler {
	return &SyncHandler{service: service, principals: principals}
}

// HandleSyncProgress dispatches /sync-progress by method.
func (h *SyncHandler) HandleSyncProgress(w http.ResponseWriter, r *http.Request) {
	owner, err := h.principals.ResolvePrincipal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required", nil)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.postSync(w, r, owner)
	case http.MethodGet:
		h.getProgress(w, r, owner)
	case http.MethodPut:
		h.putSession(w, r, owner)
	default:
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed", nil)
	}
}

func (h *SyncHandler) postSync(w http.ResponseWriter, r *http.Request, owner string) {
	var req app.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "malformed request body",
			[]fieldError{{Field: "body", Message: err.Error()}})
		return
	}

	resp, err := h.service.Sync(r.Context(), owner, req)
	if err != nil {
		if errors.Is(err, domain.ErrBatchTooLarge) {
			writeError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
			return
		}
		writeError(w, http.StatusInternalServerError, codeStorage, "sync failed", nil)
		return
	}

	writeSuccess(w, map[string]any{
		"sync_results":       resp.SyncResults,
		"server_data":        resp.ServerData,
		"conflicts_resolved": resp.ConflictsResolved,
	})
}

func (h *SyncHandler) getProgress(w http.ResponseWriter, r *http.Request, owner string) {
	q := r.URL.Query()
	filter := app.SessionFilter{Category: q.Get("category")}

	var fieldErrs []fieldError
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fieldErrs = append(fieldErrs, fieldError{Field: "limit", Message: "must be a non-negative integer"})
		} else {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fieldErrs = append(fieldErrs, fieldError{Field: "offset", Message: "must be a non-negative integer"})
		} else {
			filter.Offset = n
		}
	}
	if len(fieldErrs) > 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid query parameters", fieldErrs)
		return
	}
	includeStats := q.Get("include_stats") == "true"

	sessions, stats, err := h.service.ListProgress(r.Context(), owner, filter, includeStats)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeStorage, "failed to load progress", nil)
		return
	}

	data := map[string]any{
		"quiz_sessions": sessions,
		"pagination": map[string]int{
			"limit":  filter.Limit,
			"offset": filter.Offset,
			"count":  len(sessions),
		},
	}
	if stats != nil {
		data["stats"] = stats
	}
	writeSuccess(w, data)
}

type updateRequest struct {
	SessionID string          `json:"session_id"`
	Updates   json.RawMessage `json:"updates"`
}

func (h *SyncHandler) putSession(w http.ResponseWriter, r *http.Request, owner string) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "malformed request body",
			[]fieldError{{Field: "body", Message: err.Error()}})
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid update request",
			[]fieldError{{Field: "session_id", Message: "is required"}})
		return
	}

	// Updates are allow-listed; an unknown field is a validation error, not
	// something to spread into the record.
	var upd app.SessionUpdate
	dec := json.NewDecoder(bytes.NewReader(req.Updates))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid update request",
			[]fieldError{{Field: "updates", Message: err.Error()}})
		return
	}

	session, err := h.service.UpdateSession(r.Context(), owner, req.SessionID, upd)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotOwner):
			writeError(w, http.StatusNotFound, codeNotFound, "session not found", nil)
		case errors.Is(err, domain.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, codeValidation, err.Error(),
				[]fieldError{{Field: "updates.status", Message: err.Error()}})
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, codeValidation, err.Error(), nil)
		default:
			writeError(w, http.StatusInternalServerError, codeStorage, "update failed", nil)
		}
		return
	}
	writeSuccess(w, map[string]any{"quiz_session": session})
}
