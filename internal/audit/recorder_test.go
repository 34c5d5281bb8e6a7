package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"lightauth.org/internal/access"
)

func TestRecordPersistsAndMirrors(t *testing.T) {
	store := access.NewInMemory()
	var buf bytes.Buffer
	rec := NewRecorder(store, WithLogger(log.New(&buf, "", 0)))

	ctx := WithRequestID(context.Background(), "req-123")
	rec.Record(ctx, &access.AuthEvent{
		EventType: access.EventLogin,
		EntryID:   "entry-1",
		Email:     "user@example.com",
		Metadata:  map[string]string{"method": "light"},
	})

	events := store.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(events))
	}
	if events[0].EventType != access.EventLogin {
		t.Fatalf("unexpected event type: %s", events[0].EventType)
	}
	if events[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be stamped")
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected mirror log output")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("mirror line not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != access.EventLogin {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["method"] != "light" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

type failingStore struct {
	access.Store
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, *access.AuthEvent) error {
	return errors.New("audit table unreachable")
}

func (failingAudit) List(context.Context, int) ([]*access.AuthEvent, error) {
	return nil, errors.New("audit table unreachable")
}

func (s failingStore) Audit(context.Context) access.AuditStore { return failingAudit{} }

func TestRecordSwallowsStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(failingStore{Store: access.NewInMemory()}, WithLogger(log.New(&buf, "", 0)))

	rec.Record(context.Background(), &access.AuthEvent{
		EventType: access.EventLoginFailed,
		Email:     "user@example.com",
	})

	out := buf.String()
	if !strings.Contains(out, "audit_write_error") {
		t.Fatalf("expected audit_write_error line, got %q", out)
	}
	// The mirror line is still emitted after the store failure.
	if !strings.Contains(out, `"type":"audit"`) {
		t.Fatalf("expected mirror audit line, got %q", out)
	}
}

func TestRecordIgnoresEmptyEvent(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(nil, WithLogger(log.New(&buf, "", 0)))

	rec.Record(context.Background(), nil)
	rec.Record(context.Background(), &access.AuthEvent{})

	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
