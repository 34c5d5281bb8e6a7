package httpapi

import (
	"net/http"
	"time"

	"lightauth.org/internal/access"
	"lightauth.org/internal/obs"
	"lightauth.org/internal/session"
)

type checkRequest struct {
	Email string `json:"email"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

type loginRequest struct {
	Email string `json:"email"`
}

type authResponse struct {
	Success      bool            `json:"success"`
	User         access.Identity `json:"user"`
	NeedsProfile bool            `json:"needs_profile"`
	Token        string          `json:"token,omitempty"`
	ExpiresAt    time.Time       `json:"expires_at,omitempty"`
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	allowed := a.svc.IsEmailAllowed(r.Context(), req.Email)
	obs.ObserveAuthAttempt("check", boolOutcome(allowed))
	writeJSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.Login(r.Context(), req.Email)
	if err != nil {
		obs.ObserveAuthAttempt("login", errOutcome(err))
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveAuthAttempt("login", "ok")
	a.respondWithToken(w, r, http.StatusOK, res)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req access.RegistrationInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.RegisterWithProfile(r.Context(), req)
	if err != nil {
		obs.ObserveAuthAttempt("register", errOutcome(err))
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveAuthAttempt("register", "ok")
	a.respondWithToken(w, r, http.StatusCreated, res)
}

func (a *API) handleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}
	var req access.ProfileInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.CompleteProfile(r.Context(), claims.Subject, req)
	if err != nil {
		obs.ObserveAuthAttempt("complete_profile", errOutcome(err))
		handleAccessError(w, r, err)
		return
	}
	obs.ObserveAuthAttempt("complete_profile", "ok")
	writeJSON(w, http.StatusOK, authResponse{
		Success:      true,
		User:         res.User,
		NeedsProfile: res.NeedsProfile,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}
	a.svc.Logout(r.Context(), claims.Subject)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// respondWithToken renders a completed login or registration together
// with a fresh identity token.
func (a *API) respondWithToken(w http.ResponseWriter, r *http.Request, code int, res access.LoginResult) {
	token, err := session.GenerateToken(res.User, a.sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session issuance failed")
		return
	}
	writeJSON(w, code, authResponse{
		Success:      true,
		User:         res.User,
		NeedsProfile: res.NeedsProfile,
		Token:        token,
		ExpiresAt:    time.Now().UTC().Add(a.sessionTTL),
	})
}

func boolOutcome(allowed bool) string {
	if allowed {
		return "ok"
	}
	return "not_allowed"
}
