package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"lightauth.org/internal/access"
	"lightauth.org/internal/audit"
	"lightauth.org/internal/obs"
)

// ReadyProbe checks backing-store readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the light-auth service.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	svc        *access.Service

	sessionTTL time.Duration
	adminToken string
	maxBody    int64
	rateBurst  int
	ratePerSec int
}

// New wires routes. adminToken empty disables the admin endpoints.
func New(rp ReadyProbe, version string, svc *access.Service, adminToken string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
		sessionTTL: 12 * time.Hour,
		adminToken: adminToken,
		maxBody:    1 << 20,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/check", a.handleCheck)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.Handle("/v1/auth/profile", a.withIdentity(http.HandlerFunc(a.handleCompleteProfile)))
	a.mux.Handle("/v1/auth/logout", a.withIdentity(http.HandlerFunc(a.handleLogout)))

	a.mux.Handle("/v1/admin/allowlist", a.withAdmin(http.HandlerFunc(a.handleAllowlistCollection)))
	a.mux.Handle("/v1/admin/allowlist/", a.withAdmin(http.HandlerFunc(a.handleAllowlistResource)))
	a.mux.Handle("/v1/admin/events", a.withAdmin(http.HandlerFunc(a.handleEvents)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetSessionTTL overrides the identity token lifetime.
func (a *API) SetSessionTTL(ttl time.Duration) {
	if ttl > 0 {
		a.sessionTTL = ttl
	}
}

// SetLimits overrides body-size and rate limits.
func (a *API) SetLimits(maxBody int64, burst, perSec int) {
	if maxBody > 0 {
		a.maxBody = maxBody
	}
	if burst > 0 {
		a.rateBurst = burst
	}
	if perSec > 0 {
		a.ratePerSec = perSec
	}
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lightauth-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "lightauth-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"success": false,
		"error":   msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAccessError converts the domain error taxonomy into the uniform
// failure shape with short human-readable messages. Raw store errors
// never reach the client.
func handleAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "Valid email is required")
	case errors.Is(err, access.ErrNotAllowed):
		writeError(w, r, http.StatusForbidden, "Email not on allowed list")
	case errors.Is(err, access.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "User not found")
	case errors.Is(err, access.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "Already registered")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func errOutcome(err error) string {
	switch {
	case errors.Is(err, access.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, access.ErrNotAllowed):
		return "not_allowed"
	case errors.Is(err, access.ErrNotFound):
		return "not_found"
	case errors.Is(err, access.ErrAlreadyExists):
		return "conflict"
	default:
		return "error"
	}
}
