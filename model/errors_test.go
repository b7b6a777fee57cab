package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	err := NewNotFoundError("document not found")
	if got := err.Error(); got != "NOT_FOUND: document not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestNewPermissionDeniedError_fixedMessage(t *testing.T) {
	err := NewPermissionDeniedError()
	if err.Code != ErrPermissionDenied {
		t.Errorf("Code = %s", err.Code)
	}
	if err.Message != "not permitted" {
		t.Errorf("Message = %q, the denial text must never vary", err.Message)
	}
}

func TestNewMissingRequiredFieldError(t *testing.T) {
	err := NewMissingRequiredFieldError("message")
	if err.Code != ErrMissingRequiredField {
		t.Errorf("Code = %s", err.Code)
	}
	if len(err.Details) != 1 {
		t.Fatalf("Details = %+v", err.Details)
	}
	if err.Details[0].Field != "message" || err.Details[0].Code != "REQUIRED" {
		t.Errorf("Details[0] = %+v", err.Details[0])
	}
}

func TestNewSideEffectFailureError_wrapsCausePrivately(t *testing.T) {
	cause := fmt.Errorf("webhook returned 503")
	err := NewSideEffectFailureError(cause)

	if !errors.Is(err, cause) {
		t.Error("cause not reachable via errors.Is")
	}
	if strings.Contains(err.Message, "503") {
		t.Errorf("Message = %q leaks the cause", err.Message)
	}

	// The cause must not survive serialization either.
	raw, jerr := json.Marshal(err)
	if jerr != nil {
		t.Fatalf("marshal: %v", jerr)
	}
	if strings.Contains(string(raw), "503") {
		t.Errorf("serialized envelope %s leaks the cause", raw)
	}
}

func TestNewInvalidStateError_namesTransitionAndState(t *testing.T) {
	err := NewInvalidStateError("submit", "pending")
	if err.Code != ErrInvalidState {
		t.Errorf("Code = %s", err.Code)
	}
	if !strings.Contains(err.Message, "submit") || !strings.Contains(err.Message, "pending") {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestErrorEnvelope_detailsOmittedWhenEmpty(t *testing.T) {
	raw, err := json.Marshal(NewConflictError("busy"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "details") {
		t.Errorf("empty details serialized: %s", raw)
	}
}
