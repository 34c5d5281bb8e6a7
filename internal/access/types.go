package access

import "time"

// AllowlistEntry is an email address admitted to password-less login.
// Entries are created either by an administrator (pre-approval) or by
// self-service registration.
type AllowlistEntry struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name,omitempty"`
	Organization string     `json:"organization,omitempty"`
	IsActive     bool       `json:"is_active"`
	LoginCount   int        `json:"login_count"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserProfile holds the free-text profile tied to an allowlist entry.
// At most one profile per entry; the store enforces this with a unique
// index on entry_id.
type UserProfile struct {
	ID           string    `json:"id"`
	EntryID      string    `json:"entry_id"`
	Name         string    `json:"name,omitempty"`
	Profession   string    `json:"profession,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Interests    string    `json:"interests,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Authentication event types appended to the audit log.
const (
	EventLogin          = "login"
	EventLoginFailed    = "login_failed"
	EventLogout         = "logout"
	EventProfileUpdated = "profile_updated"
	EventRegistered     = "registered"
)

// AuthEvent is an append-only record of an authentication attempt.
// Rows are never mutated or deleted by this subsystem.
type AuthEvent struct {
	ID        string            `json:"id"`
	EventType string            `json:"event_type"`
	EntryID   string            `json:"entry_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// RoleUser is the role every light-auth identity carries.
const RoleUser = "user"

// Identity is the lightweight identity object handed to the session
// layer after a completed login or registration.
type Identity struct {
	ID      string       `json:"id"`
	Email   string       `json:"email"`
	Name    string       `json:"name,omitempty"`
	Role    string       `json:"role"`
	Profile *UserProfile `json:"profile,omitempty"`
}

// LoginResult is the outcome of a successful login, registration or
// profile completion. NeedsProfile reports whether profile completion
// is still outstanding.
type LoginResult struct {
	User         Identity `json:"user"`
	NeedsProfile bool     `json:"needs_profile"`
}

// ProfileInput carries the free-text profile fields submitted by a user.
type ProfileInput struct {
	Name         string `json:"name"`
	Profession   string `json:"profession"`
	Organization string `json:"organization"`
	Interests    string `json:"interests"`
}

// RegistrationInput is a self-service registration submission.
type RegistrationInput struct {
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	Organization string       `json:"organization"`
	Profile      ProfileInput `json:"profile"`
}
