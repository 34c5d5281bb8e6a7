package access

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lightauth.org/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety. Used by
// tests and by the API when no database DSN is configured.
type InMemory struct {
	mu       sync.RWMutex
	entries  map[string]*AllowlistEntry // id -> entry
	byEmail  map[string]string          // normalized email -> id
	profiles map[string][]*UserProfile  // entry id -> profiles
	events   []*AuthEvent
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		entries:  make(map[string]*AllowlistEntry),
		byEmail:  make(map[string]string),
		profiles: make(map[string][]*UserProfile),
	}
}

func (s *InMemory) Allowlist(context.Context) AllowlistStore { return (*memAllowlist)(s) }
func (s *InMemory) Profiles(context.Context) ProfileStore    { return (*memProfiles)(s) }
func (s *InMemory) Audit(context.Context) AuditStore         { return (*memAudit)(s) }

func (s *InMemory) Register(ctx context.Context, entry *AllowlistEntry, profile *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(entry.Email)
	if _, ok := s.byEmail[email]; ok {
		return fmt.Errorf("%w: email %s", ErrAlreadyExists, email)
	}
	s.insertEntryLocked(entry)
	profile.EntryID = entry.ID
	return s.insertProfileLocked(profile)
}

// Events returns a copy of all recorded audit events in append order.
func (s *InMemory) Events() []*AuthEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuthEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *InMemory) insertEntryLocked(entry *AllowlistEntry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	stored := *entry
	s.entries[stored.ID] = &stored
	s.byEmail[NormalizeEmail(stored.Email)] = stored.ID
}

func (s *InMemory) insertProfileLocked(profile *UserProfile) error {
	if profile.EntryID == "" {
		return fmt.Errorf("%w: entry id is required", ErrInvalidInput)
	}
	if len(s.profiles[profile.EntryID]) > 0 {
		return fmt.Errorf("%w: profile for entry %s", ErrAlreadyExists, profile.EntryID)
	}
	if profile.ID == "" {
		profile.ID = ids.New()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	stored := *profile
	s.profiles[stored.EntryID] = append(s.profiles[stored.EntryID], &stored)
	return nil
}

// Allowlist ----------------------------------------------------------------

type memAllowlist InMemory

func (s *memAllowlist) Create(ctx context.Context, entry *AllowlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := NormalizeEmail(entry.Email)
	if _, ok := s.byEmail[email]; ok {
		return fmt.Errorf("%w: email %s", ErrAlreadyExists, email)
	}
	(*InMemory)(s).insertEntryLocked(entry)
	return nil
}

func (s *memAllowlist) Find(ctx context.Context, id string) (*AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *entry
	return &out, nil
}

func (s *memAllowlist) FindByEmail(ctx context.Context, email string) (*AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.entries[id]
	return &out, nil
}

func (s *memAllowlist) List(ctx context.Context) ([]*AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AllowlistEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		cp := *entry
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memAllowlist) RecordLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	entry.LoginCount++
	t := at
	entry.LastLoginAt = &t
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memAllowlist) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	entry.IsActive = active
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memAllowlist) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, NormalizeEmail(entry.Email))
	delete(s.entries, id)
	delete(s.profiles, id)
	return nil
}

// Profiles -----------------------------------------------------------------

type memProfiles InMemory

func (s *memProfiles) Create(ctx context.Context, profile *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[profile.EntryID]; !ok {
		return ErrNotFound
	}
	return (*InMemory)(s).insertProfileLocked(profile)
}

func (s *memProfiles) ListByEntry(ctx context.Context, entryID string) ([]*UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profiles := s.profiles[entryID]
	out := make([]*UserProfile, 0, len(profiles))
	for _, p := range profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// Audit --------------------------------------------------------------------

type memAudit InMemory

func (s *memAudit) Append(ctx context.Context, event *AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = ids.New()
	}
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *memAudit) List(ctx context.Context, limit int) ([]*AuthEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	out := make([]*AuthEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.events[i]
		out = append(out, &cp)
	}
	return out, nil
}
