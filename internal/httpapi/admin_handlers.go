package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lightauth.org/internal/access"
)

type preapproveRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
}

type allowlistResponse struct {
	Items []*access.AllowlistEntry `json:"items"`
	AsOf  time.Time                `json:"as_of"`
}

type eventsResponse struct {
	Items []*access.AuthEvent `json:"items"`
	AsOf  time.Time           `json:"as_of"`
}

func (a *API) handleAllowlistCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := a.svc.ListEntries(r.Context())
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, allowlistResponse{
			Items: entries,
			AsOf:  time.Now().UTC(),
		})
	case http.MethodPost:
		var req preapproveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		entry, err := a.svc.Preapprove(r.Context(), req.Email, req.Name, req.Organization)
		if err != nil {
			if errors.Is(err, access.ErrAlreadyExists) {
				writeError(w, r, http.StatusConflict, "Email already on allowed list")
				return
			}
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAllowlistResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/allowlist/")
	id, action, hasAction := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if r.Method == http.MethodDelete && !hasAction {
		if err := a.svc.RemoveEntry(r.Context(), id); err != nil {
			if errors.Is(err, access.ErrNotFound) {
				writeError(w, r, http.StatusNotFound, "Entry not found")
				return
			}
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	if !hasAction {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	var active bool
	switch action {
	case "activate":
		active = true
	case "deactivate":
		active = false
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	entry, err := a.svc.SetEntryActive(r.Context(), id, active)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Entry not found")
			return
		}
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 || val > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = val
	}
	events, err := a.svc.ListEvents(r.Context(), limit)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Items: events,
		AsOf:  time.Now().UTC(),
	})
}
