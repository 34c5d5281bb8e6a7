package session

import (
	"context"
	"testing"
	"time"

	"lightauth.org/internal/access"
)

func testIdentity() access.Identity {
	return access.Identity{
		ID:    "entry-42",
		Email: "user@example.com",
		Name:  "User",
		Role:  access.RoleUser,
	}
}

func TestGenerateAndValidate(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken(testIdentity(), 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "entry-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if claims.Role != access.RoleUser {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken(testIdentity(), time.Minute); err == nil {
		t.Fatal("expected error without configured secret")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := ParseAndValidate(token); err == nil {
			t.Fatalf("expected rejection for %q", token)
		}
	}
}

func TestParseRejectsExpired(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken(testIdentity(), time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := ClaimsFromContext(ctx); ok {
		t.Fatal("expected no claims in empty context")
	}
	claims := &Claims{Email: "user@example.com"}
	ctx = ContextWithClaims(ctx, claims)
	got, ok := ClaimsFromContext(ctx)
	if !ok || got.Email != "user@example.com" {
		t.Fatalf("unexpected claims: %+v ok=%v", got, ok)
	}
}
