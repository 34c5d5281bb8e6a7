package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lightauth.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Uniqueness of emails and
// of one-profile-per-entry is enforced by unique indexes; concurrent
// duplicate registrations are rejected here, not by application locks.
type PGStore struct {
	db *sql.DB
}

// OpenPG opens a pooled PostgreSQL connection.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Allowlist(context.Context) AllowlistStore { return &pgAllowlist{db: s.db} }
func (s *PGStore) Profiles(context.Context) ProfileStore    { return &pgProfiles{db: s.db} }
func (s *PGStore) Audit(context.Context) AuditStore         { return &pgAudit{db: s.db} }

// Register inserts the entry and its profile in one transaction. If the
// profile insert fails the entry insert rolls back with it, so no
// active, profile-less entry can be left behind.
func (s *PGStore) Register(ctx context.Context, entry *AllowlistEntry, profile *UserProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if _, err := tx.ExecContext(ctx,
		`insert into allowlist_entries(id, email, name, organization, is_active) values($1,$2,$3,$4,$5)`,
		entry.ID, entry.Email, entry.Name, entry.Organization, entry.IsActive,
	); err != nil {
		return mapPGError(err)
	}

	if profile.ID == "" {
		profile.ID = ids.New()
	}
	profile.EntryID = entry.ID
	if _, err := tx.ExecContext(ctx,
		`insert into user_profiles(id, entry_id, name, profession, organization, interests) values($1,$2,$3,$4,$5,$6)`,
		profile.ID, profile.EntryID, profile.Name, profile.Profession, profile.Organization, profile.Interests,
	); err != nil {
		return mapPGError(err)
	}

	return tx.Commit()
}

// Allowlist store ----------------------------------------------------------

type pgAllowlist struct{ db *sql.DB }

const allowlistColumns = `id, email, name, organization, is_active, login_count, last_login_at, created_at, updated_at`

func (s *pgAllowlist) Create(ctx context.Context, entry *AllowlistEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into allowlist_entries(id, email, name, organization, is_active) values($1,$2,$3,$4,$5)`,
		entry.ID, entry.Email, entry.Name, entry.Organization, entry.IsActive,
	)
	return mapPGError(err)
}

func (s *pgAllowlist) Find(ctx context.Context, id string) (*AllowlistEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+allowlistColumns+` from allowlist_entries where id=$1`, id)
	return scanEntry(row)
}

func (s *pgAllowlist) FindByEmail(ctx context.Context, email string) (*AllowlistEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+allowlistColumns+` from allowlist_entries where lower(email)=lower($1)`, email)
	return scanEntry(row)
}

func (s *pgAllowlist) List(ctx context.Context) ([]*AllowlistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+allowlistColumns+` from allowlist_entries order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AllowlistEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *pgAllowlist) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update allowlist_entries set login_count = login_count + 1, last_login_at = $2, updated_at = now() where id=$1`,
		id, at,
	)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *pgAllowlist) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update allowlist_entries set is_active = $2, updated_at = now() where id=$1`,
		id, active,
	)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *pgAllowlist) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from allowlist_entries where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*AllowlistEntry, error) {
	var (
		entry     AllowlistEntry
		lastLogin sql.NullTime
	)
	if err := row.Scan(&entry.ID, &entry.Email, &entry.Name, &entry.Organization,
		&entry.IsActive, &entry.LoginCount, &lastLogin, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		entry.LastLoginAt = &t
	}
	return &entry, nil
}

// Profile store ------------------------------------------------------------

type pgProfiles struct{ db *sql.DB }

func (s *pgProfiles) Create(ctx context.Context, profile *UserProfile) error {
	if profile.EntryID == "" {
		return fmt.Errorf("%w: entry id is required", ErrInvalidInput)
	}
	if profile.ID == "" {
		profile.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into user_profiles(id, entry_id, name, profession, organization, interests) values($1,$2,$3,$4,$5,$6)`,
		profile.ID, profile.EntryID, profile.Name, profile.Profession, profile.Organization, profile.Interests,
	)
	return mapPGError(err)
}

func (s *pgProfiles) ListByEntry(ctx context.Context, entryID string) ([]*UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, entry_id, name, profession, organization, interests, created_at
		 from user_profiles where entry_id=$1 order by created_at asc`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*UserProfile
	for rows.Next() {
		var p UserProfile
		if err := rows.Scan(&p.ID, &p.EntryID, &p.Name, &p.Profession, &p.Organization, &p.Interests, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// Audit store --------------------------------------------------------------

type pgAudit struct{ db *sql.DB }

func (s *pgAudit) Append(ctx context.Context, event *AuthEvent) error {
	if event.ID == "" {
		event.ID = ids.New()
	}
	meta, _ := json.Marshal(event.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into auth_events(id, event_type, entry_id, email, metadata, created_at)
		 values($1,$2,nullif($3,''),$4,$5,$6)`,
		event.ID, event.EventType, event.EntryID, event.Email, meta, event.CreatedAt,
	)
	return err
}

func (s *pgAudit) List(ctx context.Context, limit int) ([]*AuthEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, event_type, coalesce(entry_id,''), email, metadata, created_at
		 from auth_events order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*AuthEvent
	for rows.Next() {
		var (
			ev   AuthEvent
			meta []byte
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.EntryID, &ev.Email, &meta, &ev.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &ev.Metadata)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// Helpers ------------------------------------------------------------------

func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mapPGError translates driver-level constraint violations into the
// domain error taxonomy.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
