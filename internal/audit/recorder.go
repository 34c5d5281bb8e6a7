// Package audit records authentication events. Writes are
// fire-and-forget: observability must not break the critical path, so
// failures are logged locally and never surface to the caller. This is
// the deliberate opposite of the allowlist check, which fails closed.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"lightauth.org/internal/access"
	"lightauth.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for
// audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder persists auth events to the store and mirrors them as JSON
// log lines.
type Recorder struct {
	store  access.Store
	logger *log.Logger
	now    func() time.Time
}

var _ access.Recorder = (*Recorder)(nil)

// Option configures Recorder.
type Option func(*Recorder)

// WithLogger overrides the mirror logger (useful for tests).
func WithLogger(l *log.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder. A nil store yields a log-only
// recorder.
func NewRecorder(store access.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: obs.Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends the event to the audit store and emits the JSON
// mirror line. Store failures are downgraded to a log line.
func (r *Recorder) Record(ctx context.Context, event *access.AuthEvent) {
	if event == nil || strings.TrimSpace(event.EventType) == "" {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}

	if r.store != nil {
		if err := r.store.Audit(ctx).Append(ctx, event); err != nil {
			r.logLine(map[string]any{
				"ts":    r.now().UTC().Format(time.RFC3339Nano),
				"type":  "audit_write_error",
				"event": event.EventType,
				"error": err.Error(),
			})
		}
	}

	entry := map[string]any{
		"ts":    event.CreatedAt.Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event.EventType,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if event.EntryID != "" {
		entry["entry_id"] = event.EntryID
	}
	if event.Email != "" {
		entry["email"] = event.Email
	}
	if len(event.Metadata) > 0 {
		fields := make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			fields[k] = v
		}
		entry["fields"] = fields
	} else {
		entry["fields"] = map[string]any{}
	}
	r.logLine(entry)
}

func (r *Recorder) logLine(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	r.logger.Println(string(data))
}
