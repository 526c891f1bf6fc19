package token

import (
	"slices"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAccessTokenRoundTrip(t *testing.T) {
	codec, err := NewCodec(testSecret, WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	raw, err := codec.IssueAccess("user-42", "a@x.com", "company-7", []string{"Admin", "viewer", "admin"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	claims, err := codec.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Fatalf("unexpected userId: %s", claims.UserID)
	}
	if claims.Email != "a@x.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if claims.CompanyID != "company-7" {
		t.Fatalf("unexpected companyId: %s", claims.CompanyID)
	}
	if claims.Kind() != KindAccess {
		t.Fatalf("unexpected kind: %s", claims.Kind())
	}
	if !slices.Contains(claims.Roles, "admin") || !slices.Contains(claims.Roles, "viewer") {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", claims.Roles)
	}
}

func TestRefreshTokenKind(t *testing.T) {
	codec, err := NewCodec(testSecret)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	raw, err := codec.IssueRefresh("user-42", "a@x.com")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	claims, err := codec.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Kind() != KindRefresh {
		t.Fatalf("unexpected kind: %s", claims.Kind())
	}
	if len(claims.Roles) != 0 {
		t.Fatalf("refresh tokens must not carry roles: %v", claims.Roles)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issued := time.Now().UTC()
	clock := issued
	codec, err := NewCodec(testSecret, WithClock(func() time.Time { return clock }), WithAccessTTL(time.Minute))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	raw, err := codec.IssueAccess("user-42", "a@x.com", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	clock = issued.Add(2 * time.Minute)
	if _, err := codec.Parse(raw); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	codec, _ := NewCodec(testSecret)
	other, _ := NewCodec("ffffffffffffffffffffffffffffffff")

	raw, err := other.IssueAccess("user-42", "a@x.com", "", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := codec.Parse(raw); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	codec, _ := NewCodec(testSecret)
	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := codec.Parse(raw); err != ErrInvalidToken {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", raw, err)
		}
	}
}

func TestNewCodecRejectsWeakSecret(t *testing.T) {
	if _, err := NewCodec("short"); err == nil {
		t.Fatal("expected error for weak secret")
	}
}
