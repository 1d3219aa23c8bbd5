package authx

import (
	"context"
	"testing"
)

func TestParseRoles(t *testing.T) {
	claims := map[string]any{
		"roles": []any{"inspector", "admin"},
		"scp":   "read write",
	}
	roles := parseRoles(claims)
	if len(roles) < 3 {
		t.Fatalf("expected roles to include entries, got %v", roles)
	}
}

func TestNewJWTVerifierValidation(t *testing.T) {
	if _, err := NewJWTVerifier("", "aud", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing issuer")
	}
}

func TestPerformerNameFallsBackToAdministrator(t *testing.T) {
	if got := PerformerName(context.Background()); got != "Administrator" {
		t.Fatalf("expected placeholder identity, got %q", got)
	}
	ctx := WithAuth(context.Background(), AuthContext{Subject: "u-1", Name: "I. Petrov"})
	if got := PerformerName(ctx); got != "I. Petrov" {
		t.Fatalf("expected token name, got %q", got)
	}
}
