package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		errType  ErrorType
		expected bool
	}{
		{"decode error", NewDecodeError("bad bytes", nil), ErrorTypeDecode, true},
		{"wrapped enumeration error", fmt.Errorf("scan: %w", NewEnumerationError("listing failed", nil)), ErrorTypeEnumeration, true},
		{"mismatched type", NewDeletionError("gone", nil), ErrorTypeDecode, false},
		{"permission challenge", NewPermissionChallenge("a.jpg", "tok", nil), ErrorTypePermissionChallenge, true},
		{"plain error", errors.New("boom"), ErrorTypeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsType(tt.err, tt.errType); got != tt.expected {
				t.Errorf("IsType() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetStatusCode(t *testing.T) {
	if code := GetStatusCode(NewEnumerationError("x", nil)); code != http.StatusBadGateway {
		t.Errorf("Expected %d for enumeration error, got %d", http.StatusBadGateway, code)
	}
	if code := GetStatusCode(NewPermissionChallenge("a", "b", nil)); code != http.StatusForbidden {
		t.Errorf("Expected %d for permission challenge, got %d", http.StatusForbidden, code)
	}
	if code := GetStatusCode(errors.New("plain")); code != http.StatusInternalServerError {
		t.Errorf("Expected %d for plain error, got %d", http.StatusInternalServerError, code)
	}
}

func TestAsPermissionChallenge(t *testing.T) {
	cause := errors.New("403")
	err := fmt.Errorf("delete: %w", NewPermissionChallenge("img.jpg", "token-1", cause))

	pc, ok := AsPermissionChallenge(err)
	if !ok {
		t.Fatal("Expected a permission challenge in the chain")
	}
	if pc.Token != "token-1" || pc.Handle != "img.jpg" {
		t.Errorf("Unexpected challenge contents: %+v", pc)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected the cause to be reachable via errors.Is")
	}
	if TypeOf(err) != ErrorTypePermissionChallenge {
		t.Errorf("Expected TypeOf to report %s, got %s", ErrorTypePermissionChallenge, TypeOf(err))
	}
}
