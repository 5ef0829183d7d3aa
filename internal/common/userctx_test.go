package common

import (
	"context"
	"strings"
	"testing"
)

func TestUserContext_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// Absent by default
	if uc := UserContextFromContext(ctx); uc != nil {
		t.Error("Expected nil UserContext from empty context")
	}

	ctx = WithUserContext(ctx, &UserContext{UserID: "user-123"})

	got := UserContextFromContext(ctx)
	if got == nil {
		t.Fatal("Expected non-nil UserContext")
	}
	if got.UserID != "user-123" {
		t.Errorf("Expected user-123, got %s", got.UserID)
	}
}

func TestResolveUserID(t *testing.T) {
	if got := ResolveUserID(context.Background()); got != DefaultUserID {
		t.Errorf("Expected %s without context, got %s", DefaultUserID, got)
	}

	ctx := WithUserContext(context.Background(), &UserContext{})
	if got := ResolveUserID(ctx); got != DefaultUserID {
		t.Errorf("Expected %s for empty UserID, got %s", DefaultUserID, got)
	}

	ctx = WithUserContext(context.Background(), &UserContext{UserID: "alice"})
	if got := ResolveUserID(ctx); got != "alice" {
		t.Errorf("Expected alice, got %s", got)
	}
}

func TestNormalizeUserID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"alice", "alice"},
		{"  bob  ", "bob"},
		{"a.b-c_d@example.com", "a.b-c_d@example.com"},
		{"", ""},
		{"   ", ""},
		{"a b", ""},
		{"../etc/passwd", ""},
		{"user;drop", ""},
		{"wallet:x", ""},
		{strings.Repeat("x", 128), strings.Repeat("x", 128)},
		{strings.Repeat("x", 129), ""},
	}
	for _, tt := range tests {
		if got := NormalizeUserID(tt.input); got != tt.want {
			t.Errorf("NormalizeUserID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
