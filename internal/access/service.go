package access

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lightauth.org/internal/obs"
)

// Service orchestrates the allowlist check, login-or-register branch,
// profile completion and audit trail. It holds no cache: every check is
// a fresh read against the store.
type Service struct {
	store    Store
	recorder Recorder
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithRecorder sets the audit event recorder.
func WithRecorder(rec Recorder) ServiceOption {
	return func(s *Service) error {
		if rec != nil {
			s.recorder = rec
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	svc := &Service{
		store:    store,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// NormalizeEmail lowercases and trims an email address. Uniqueness and
// lookups are always case-insensitive.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validEmail(email string) bool {
	return email != "" && strings.Contains(email, "@")
}

// IsEmailAllowed reports whether the email may proceed to login. Any
// lookup failure yields false: an infrastructure failure must never be
// read as access granted. No side effects, no audit event.
func (s *Service) IsEmailAllowed(ctx context.Context, email string) bool {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return false
	}
	entry, err := s.store.Allowlist(ctx).FindByEmail(ctx, email)
	if err != nil {
		return false
	}
	return entry.IsActive
}

// Login authenticates an email against the allowlist. A missing or
// inactive entry fails with ErrNotAllowed. The login counter update is
// best-effort: its failure never rolls back the login itself. Exactly
// one audit event is recorded per attempt.
func (s *Service) Login(ctx context.Context, email string) (LoginResult, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		s.audit(ctx, EventLoginFailed, "", email, map[string]string{"reason": "invalid_email"})
		return LoginResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}

	entry, err := s.store.Allowlist(ctx).FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			s.audit(ctx, EventLoginFailed, "", email, map[string]string{"reason": "not_allowed"})
			return LoginResult{}, ErrNotAllowed
		}
		s.audit(ctx, EventLoginFailed, "", email, map[string]string{"reason": "lookup_failed"})
		return LoginResult{}, fmt.Errorf("find allowlist entry: %w", err)
	}
	if !entry.IsActive {
		s.audit(ctx, EventLoginFailed, entry.ID, email, map[string]string{"reason": "inactive"})
		return LoginResult{}, ErrNotAllowed
	}

	profiles, err := s.store.Profiles(ctx).ListByEntry(ctx, entry.ID)
	if err != nil {
		s.audit(ctx, EventLoginFailed, entry.ID, email, map[string]string{"reason": "profile_lookup_failed"})
		return LoginResult{}, fmt.Errorf("list profiles: %w", err)
	}

	meta := map[string]string{"method": "light"}
	var profile *UserProfile
	if len(profiles) > 0 {
		// First row wins; more than one is a data-integrity defect that
		// must be flagged, not silently replicated.
		profile = profiles[0]
		if len(profiles) > 1 {
			meta["duplicate_profiles"] = strconv.Itoa(len(profiles))
			obs.ObserveDuplicateProfiles()
		}
	}

	if err := s.store.Allowlist(ctx).RecordLogin(ctx, entry.ID, s.now().UTC()); err != nil {
		// Tracking is not allowed to block authentication.
		meta["login_tracking"] = "failed"
	}

	meta["needs_profile"] = strconv.FormatBool(profile == nil)
	s.audit(ctx, EventLogin, entry.ID, email, meta)

	return LoginResult{
		User:         identity(entry, profile),
		NeedsProfile: profile == nil,
	}, nil
}

// RegisterWithProfile admits a new email and creates its profile in a
// single store transaction. A concurrent duplicate registration is
// rejected by the store's uniqueness constraint; the orchestrator does
// not serialize per-email attempts.
func (s *Service) RegisterWithProfile(ctx context.Context, in RegistrationInput) (LoginResult, error) {
	email := NormalizeEmail(in.Email)
	if !validEmail(email) {
		s.audit(ctx, EventLoginFailed, "", email, map[string]string{"reason": "invalid_email"})
		return LoginResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}

	entry := &AllowlistEntry{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Organization: strings.TrimSpace(in.Organization),
		IsActive:     true,
	}
	profile := &UserProfile{
		Name:         strings.TrimSpace(firstNonEmpty(in.Profile.Name, in.Name)),
		Profession:   strings.TrimSpace(in.Profile.Profession),
		Organization: strings.TrimSpace(firstNonEmpty(in.Profile.Organization, in.Organization)),
		Interests:    strings.TrimSpace(in.Profile.Interests),
	}

	if err := s.store.Register(ctx, entry, profile); err != nil {
		if isAlreadyExists(err) {
			s.audit(ctx, EventLoginFailed, "", email, map[string]string{"reason": "email_exists"})
			return LoginResult{}, fmt.Errorf("%w: email already registered", ErrAlreadyExists)
		}
		s.audit(ctx, EventLoginFailed, "", email, map[string]string{"reason": "registration_failed"})
		return LoginResult{}, fmt.Errorf("register entry: %w", err)
	}

	s.audit(ctx, EventRegistered, entry.ID, email, map[string]string{"method": "light"})

	return LoginResult{
		User:         identity(entry, profile),
		NeedsProfile: false,
	}, nil
}

// CompleteProfile creates the profile for an existing entry. A second
// profile for the same entry fails with ErrAlreadyExists.
func (s *Service) CompleteProfile(ctx context.Context, entryID string, in ProfileInput) (LoginResult, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return LoginResult{}, fmt.Errorf("%w: entry id is required", ErrInvalidInput)
	}

	entry, err := s.store.Allowlist(ctx).Find(ctx, entryID)
	if err != nil {
		if isNotFound(err) {
			return LoginResult{}, fmt.Errorf("%w: user not found", ErrNotFound)
		}
		return LoginResult{}, fmt.Errorf("find allowlist entry: %w", err)
	}

	profile := &UserProfile{
		EntryID:      entry.ID,
		Name:         strings.TrimSpace(in.Name),
		Profession:   strings.TrimSpace(in.Profession),
		Organization: strings.TrimSpace(in.Organization),
		Interests:    strings.TrimSpace(in.Interests),
	}
	if err := s.store.Profiles(ctx).Create(ctx, profile); err != nil {
		if isAlreadyExists(err) {
			return LoginResult{}, fmt.Errorf("%w: profile already exists", ErrAlreadyExists)
		}
		return LoginResult{}, fmt.Errorf("create profile: %w", err)
	}

	s.audit(ctx, EventProfileUpdated, entry.ID, entry.Email, nil)

	return LoginResult{
		User:         identity(entry, profile),
		NeedsProfile: false,
	}, nil
}

// Logout records the logout event. The session itself lives in the
// caller's token layer and expires there.
func (s *Service) Logout(ctx context.Context, entryID string) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return
	}
	email := ""
	if entry, err := s.store.Allowlist(ctx).Find(ctx, entryID); err == nil {
		email = entry.Email
	}
	s.audit(ctx, EventLogout, entryID, email, nil)
}

// Preapprove creates an active allowlist entry without a profile. Used
// by administrators ahead of a user's first login.
func (s *Service) Preapprove(ctx context.Context, email, name, organization string) (*AllowlistEntry, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	entry := &AllowlistEntry{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Organization: strings.TrimSpace(organization),
		IsActive:     true,
	}
	if err := s.store.Allowlist(ctx).Create(ctx, entry); err != nil {
		if isAlreadyExists(err) {
			return nil, fmt.Errorf("%w: email already on allowed list", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create allowlist entry: %w", err)
	}
	return entry, nil
}

// ListEntries returns all allowlist entries ordered by creation time.
func (s *Service) ListEntries(ctx context.Context) ([]*AllowlistEntry, error) {
	return s.store.Allowlist(ctx).List(ctx)
}

// ListEvents returns the most recent audit events.
func (s *Service) ListEvents(ctx context.Context, limit int) ([]*AuthEvent, error) {
	return s.store.Audit(ctx).List(ctx, limit)
}

// SetEntryActive flips the activity flag. An inactive entry never
// authorizes login.
func (s *Service) SetEntryActive(ctx context.Context, entryID string, active bool) (*AllowlistEntry, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return nil, fmt.Errorf("%w: entry id is required", ErrInvalidInput)
	}
	if err := s.store.Allowlist(ctx).SetActive(ctx, entryID, active); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: entry not found", ErrNotFound)
		}
		return nil, fmt.Errorf("set entry active: %w", err)
	}
	return s.store.Allowlist(ctx).Find(ctx, entryID)
}

// RemoveEntry deletes an allowlist entry and its profile. Audit events
// referencing the entry are kept.
func (s *Service) RemoveEntry(ctx context.Context, entryID string) error {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return fmt.Errorf("%w: entry id is required", ErrInvalidInput)
	}
	if err := s.store.Allowlist(ctx).Delete(ctx, entryID); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: entry not found", ErrNotFound)
		}
		return fmt.Errorf("delete allowlist entry: %w", err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, eventType, entryID, email string, meta map[string]string) {
	s.recorder.Record(ctx, &AuthEvent{
		EventType: eventType,
		EntryID:   entryID,
		Email:     email,
		Metadata:  meta,
		CreatedAt: s.now().UTC(),
	})
}

func identity(entry *AllowlistEntry, profile *UserProfile) Identity {
	name := entry.Name
	if name == "" && profile != nil {
		name = profile.Name
	}
	return Identity{
		ID:      entry.ID,
		Email:   entry.Email,
		Name:    name,
		Role:    RoleUser,
		Profile: profile,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *AuthEvent) {}
