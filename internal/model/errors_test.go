package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestStateErrorMatchesIllegalTransition(t *testing.T) {
	err := fmt.Errorf("approve: %w", &StateError{Kind: "integration", ID: "int-1", From: "active", Op: "approve"})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatal("expected wrapped StateError to match ErrIllegalTransition")
	}
	if IsValidation(err) || IsNotFound(err) {
		t.Fatal("state error must not classify as validation or not-found")
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	err := Invalid("scope", "must be one of user_access, tool_access")
	if !IsValidation(err) {
		t.Fatal("expected validation error")
	}
	if got := err.Error(); got != "invalid scope: must be one of user_access, tool_access" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestCollaboratorErrorUnwraps(t *testing.T) {
	inner := errors.New("connection refused")
	err := &CollaboratorError{Collaborator: "catalog", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected CollaboratorError to unwrap")
	}
}

func TestParseEffect(t *testing.T) {
	tests := []struct {
		in   string
		want Effect
		ok   bool
	}{
		{"allow", Allow, true},
		{" DENY ", Deny, true},
		{"maybe", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseEffect(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseEffect(%q) = %q,%v; want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
