package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	token, err := Issue("T1", RoleTeacher, "rollcall-test", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := Parse(token.Value, "secret", "rollcall-test")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "T1" || claims.Role != RoleTeacher {
		t.Errorf("claims = %+v", claims)
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	if _, err := Issue("X", "admin", "iss", "secret", time.Hour); err == nil {
		t.Error("unknown role should be rejected")
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, err := Issue("S1", RoleStudent, "iss", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(token.Value, "other-secret", "iss"); err == nil {
		t.Error("wrong signing key should fail")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, err := Issue("S1", RoleStudent, "iss", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(token.Value, "secret", "someone-else"); err == nil {
		t.Error("issuer mismatch should fail")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := Issue("S1", RoleStudent, "iss", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(token.Value, "secret", "iss"); err == nil {
		t.Error("expired token should fail")
	}
}
