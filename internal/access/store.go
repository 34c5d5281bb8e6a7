package access

import (
	"context"
	"time"
)

// Store describes persistence operations required by the light-auth
// workflow. The allowlist and profile stores are the sole sources of
// truth; callers never cache entries across calls.
type Store interface {
	Allowlist(ctx context.Context) AllowlistStore
	Profiles(ctx context.Context) ProfileStore
	Audit(ctx context.Context) AuditStore

	// Register inserts an allowlist entry and its profile atomically.
	// A duplicate email fails with ErrAlreadyExists and leaves no rows.
	Register(ctx context.Context, entry *AllowlistEntry, profile *UserProfile) error
}

// AllowlistStore manages admitted email addresses.
type AllowlistStore interface {
	Create(ctx context.Context, entry *AllowlistEntry) error
	Find(ctx context.Context, id string) (*AllowlistEntry, error)
	FindByEmail(ctx context.Context, email string) (*AllowlistEntry, error)
	List(ctx context.Context) ([]*AllowlistEntry, error)
	// RecordLogin increments login_count and stamps last_login_at.
	RecordLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// ProfileStore manages per-entry profile records.
type ProfileStore interface {
	Create(ctx context.Context, profile *UserProfile) error
	// ListByEntry returns profiles ordered by created_at. More than one
	// row is a data-integrity defect surfaced by the orchestrator.
	ListByEntry(ctx context.Context, entryID string) ([]*UserProfile, error)
}

// AuditStore appends immutable authentication events.
type AuditStore interface {
	Append(ctx context.Context, event *AuthEvent) error
	List(ctx context.Context, limit int) ([]*AuthEvent, error)
}

// Recorder persists authentication events without ever failing the
// caller. Security-relevant lookups fail closed; audit writes fail open.
type Recorder interface {
	Record(ctx context.Context, event *AuthEvent)
}
