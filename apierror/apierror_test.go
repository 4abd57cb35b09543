package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromStatus_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"401 maps to unauthenticated", http.StatusUnauthorized, KindUnauthenticated},
		{"403 maps to forbidden", http.StatusForbidden, KindForbidden},
		{"404 maps to not found", http.StatusNotFound, KindNotFound},
		{"500 maps to server error", http.StatusInternalServerError, KindServerError},
		{"503 maps to server error", http.StatusServiceUnavailable, KindServerError},
		{"418 falls back to server error", http.StatusTeapot, KindServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(tt.status, nil)
			if err.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.want)
			}
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
			if err.Message == "" {
				t.Error("Expected a non-empty fallback message")
			}
		})
	}
}

func TestFromStatus_MessageExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"flat error field", `{"error":"license not found"}`, "license not found"},
		{"flat message field", `{"message":"invalid filter"}`, "invalid filter"},
		{"nested error.message", `{"error":{"message":"tenant mismatch"}}`, "tenant mismatch"},
		{"oauth error_description", `{"error":"invalid_grant","error_description":"refresh token expired"}`, "refresh token expired"},
		{"detail field", `{"detail":"record locked"}`, "record locked"},
		{"not json", `<html>oops</html>`, ""},
		{"empty body", ``, ""},
		{"error object without message", `{"error":{"code":500}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractMessage([]byte(tt.body))
			if got != tt.want {
				t.Errorf("extractMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("Get \"x\": %w", context.DeadlineExceeded), KindTimeout},
		{"cancelled", context.Canceled, KindCancelled},
		{"wrapped cancel", fmt.Errorf("Get \"x\": %w", context.Canceled), KindCancelled},
		{"plain dial failure", errors.New("connection refused"), KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromTransport(tt.err)
			if err.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("Expected the cause to remain reachable via errors.Is")
			}
		})
	}
}

func TestErrorIs_MatchesOnKind(t *testing.T) {
	err := New(KindTimeout, "slow backend")

	if !errors.Is(err, &Error{Kind: KindTimeout}) {
		t.Error("errors.Is should match two errors of the same kind")
	}
	if errors.Is(err, &Error{Kind: KindForbidden}) {
		t.Error("errors.Is should not match different kinds")
	}
}

func TestIsKindAndIsCancelled(t *testing.T) {
	wrapped := fmt.Errorf("fetch licenses: %w", New(KindCancelled, "superseded"))

	if !IsKind(wrapped, KindCancelled) {
		t.Error("IsKind should see through fmt.Errorf wrapping")
	}
	if !IsCancelled(wrapped) {
		t.Error("IsCancelled should report true for a wrapped cancelled error")
	}
	if IsCancelled(errors.New("plain")) {
		t.Error("IsCancelled should report false for foreign errors")
	}
}

func TestKindOf_UnknownErrors(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindTransport {
		t.Errorf("KindOf(plain error) = %q, want %q", got, KindTransport)
	}
	if got := KindOf(New(KindNotFound, "gone")); got != KindNotFound {
		t.Errorf("KindOf = %q, want %q", got, KindNotFound)
	}
}

func TestRoleGate_CarriesBothSides(t *testing.T) {
	err := RoleGate([]string{"admin", "auditor"}, []string{"viewer"})

	if err.Kind != KindInsufficientPermissions {
		t.Fatalf("Kind = %q, want %q", err.Kind, KindInsufficientPermissions)
	}
	if len(err.RequiredRoles) != 2 || err.RequiredRoles[0] != "admin" {
		t.Errorf("RequiredRoles = %v, want [admin auditor]", err.RequiredRoles)
	}
	if len(err.ActualRoles) != 1 || err.ActualRoles[0] != "viewer" {
		t.Errorf("ActualRoles = %v, want [viewer]", err.ActualRoles)
	}
	if err.Status != 0 {
		t.Errorf("Status = %d, want 0 for a local failure", err.Status)
	}
}
