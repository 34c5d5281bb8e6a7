package access

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPGStore(db), mock
}

func entryRows(entry *AllowlistEntry) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "name", "organization", "is_active",
		"login_count", "last_login_at", "created_at", "updated_at",
	}).AddRow(entry.ID, entry.Email, entry.Name, entry.Organization, entry.IsActive,
		entry.LoginCount, entry.LastLoginAt, entry.CreatedAt, entry.UpdatedAt)
}

func TestPGRegisterCommits(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	entry := &AllowlistEntry{ID: "e1", Email: "new@example.com", Name: "New", IsActive: true}
	profile := &UserProfile{ID: "p1", Name: "New", Profession: "Engineer"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`insert into allowlist_entries(id, email, name, organization, is_active) values($1,$2,$3,$4,$5)`)).
		WithArgs("e1", "new@example.com", "New", "", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`insert into user_profiles(id, entry_id, name, profession, organization, interests) values($1,$2,$3,$4,$5,$6)`)).
		WithArgs("p1", "e1", "New", "Engineer", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Register(ctx, entry, profile); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if profile.EntryID != "e1" {
		t.Fatalf("profile not linked to entry: %q", profile.EntryID)
	}
}

func TestPGRegisterDuplicateEmailRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`insert into allowlist_entries`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "allowlist_entries_email_key"})
	mock.ExpectRollback()

	err := store.Register(ctx,
		&AllowlistEntry{ID: "e1", Email: "taken@example.com", IsActive: true},
		&UserProfile{ID: "p1"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestPGRegisterProfileFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`insert into allowlist_entries`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`insert into user_profiles`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.Register(ctx,
		&AllowlistEntry{ID: "e1", Email: "new@example.com", IsActive: true},
		&UserProfile{ID: "p1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrNotFound) {
		t.Fatalf("infrastructure failure must not map to a domain error: %v", err)
	}
}

func TestPGFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	want := &AllowlistEntry{
		ID: "e1", Email: "user@example.com", Name: "User", IsActive: true,
		LoginCount: 3, CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectQuery(regexp.QuoteMeta(`where lower(email)=lower($1)`)).
		WithArgs("user@example.com").
		WillReturnRows(entryRows(want))

	got, err := store.Allowlist(ctx).FindByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if got.ID != want.ID || got.LoginCount != 3 || !got.IsActive {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestPGFindByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`where lower(email)=lower($1)`)).
		WithArgs("stranger@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Allowlist(ctx).FindByEmail(ctx, "stranger@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGRecordLogin(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`update allowlist_entries set login_count = login_count + 1`)).
		WithArgs("e1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Allowlist(ctx).RecordLogin(ctx, "e1", at); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
}

func TestPGRecordLoginMissingEntry(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`update allowlist_entries set login_count = login_count + 1`)).
		WithArgs("missing", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Allowlist(ctx).RecordLogin(ctx, "missing", at)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGSetActiveMissingEntry(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`update allowlist_entries set is_active = $2`)).
		WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Allowlist(ctx).SetActive(ctx, "missing", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGProfileCreateConstraintMapping(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`insert into user_profiles`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "user_profiles_entry_key"})
	err := store.Profiles(ctx).Create(ctx, &UserProfile{ID: "p1", EntryID: "e1"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("unique violation err = %v, want ErrAlreadyExists", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`insert into user_profiles`)).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "user_profiles_entry_id_fkey"})
	err = store.Profiles(ctx).Create(ctx, &UserProfile{ID: "p2", EntryID: "gone"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("fk violation err = %v, want ErrNotFound", err)
	}
}

func TestPGAuditAppend(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`insert into auth_events`)).
		WithArgs("ev1", EventLogin, "e1", "user@example.com", []byte(`{"method":"light"}`), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Audit(ctx).Append(ctx, &AuthEvent{
		ID:        "ev1",
		EventType: EventLogin,
		EntryID:   "e1",
		Email:     "user@example.com",
		Metadata:  map[string]string{"method": "light"},
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}
