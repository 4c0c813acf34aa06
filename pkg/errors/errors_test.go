package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		check    func(error) bool
		expected bool
	}{
		{"invalid argument is bad request", InvalidArgument("user"), IsBadRequest, true},
		{"duplicate username is conflict", DuplicateUsername("alice"), IsConflict, true},
		{"duplicate email is conflict", DuplicateEmail("a@x.com"), IsConflict, true},
		{"duplicate username detected", DuplicateUsername("alice"), IsDuplicateUsername, true},
		{"duplicate email is not duplicate username", DuplicateEmail("a@x.com"), IsDuplicateUsername, false},
		{"wrapped duplicate email detected", fmt.Errorf("create: %w", DuplicateEmail("a@x.com")), IsDuplicateEmail, true},
		{"not found", NotFound("user", ErrNotFound), IsNotFound, true},
		{"bare sentinel not found", ErrNotFound, IsNotFound, true},
		{"locked out", LockedOut("u1"), IsLockedOut, true},
		{"invalid credentials is unauthorized", ErrInvalidCredentials, IsUnauthorized, true},
		{"storage error is not conflict", StorageError("insert", errors.New("boom")), IsConflict, false},
		{"bare duplicate sentinel is conflict", fmt.Errorf("index: %w", ErrDuplicateEmail), IsConflict, true},
		{"outer kind wins over wrapped cause", InternalError("encode", ErrNotFound), IsNotFound, false},
		{"nil is not found", nil, IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.expected {
				t.Errorf("got %v, want %v for %v", got, tt.expected, tt.err)
			}
		})
	}
}

func TestAppErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := StorageError("retrieve", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected storage error to unwrap to its cause")
	}
	if err.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("status = %d", err.HTTPStatus())
	}
	if err.Error() != "storage retrieve failed: connection reset" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestInvalidArgumentDetails(t *testing.T) {
	err := InvalidArgument("claim")
	if err.Details["argument"] != "claim" {
		t.Errorf("details = %v", err.Details)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("expected ErrInvalidInput")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err    error
		kind   Kind
		status int
	}{
		{LockedOut("u1"), KindLockedOut, http.StatusLocked},
		{DuplicateUsername("alice"), KindDuplicateUsername, http.StatusConflict},
		{fmt.Errorf("create: %w", DuplicateEmail("a@x.com")), KindDuplicateEmail, http.StatusConflict},
		{NotFound("user", nil), KindNotFound, http.StatusNotFound},
		{ValidationError("email", "bad email"), KindBadRequest, http.StatusBadRequest},
		{Unauthorized("", ErrInvalidCredentials), KindUnauthorized, http.StatusUnauthorized},
		{ErrForbidden, KindForbidden, http.StatusForbidden},
		{Conflict("modified concurrently", nil), KindConflict, http.StatusConflict},
		{errors.New("disk on fire"), KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			kind := KindOf(tt.err)
			if kind != tt.kind {
				t.Fatalf("kind = %q, want %q", kind, tt.kind)
			}
			if kind.Status() != tt.status {
				t.Errorf("status = %d, want %d", kind.Status(), tt.status)
			}
		})
	}
}

func TestLockedOutDetails(t *testing.T) {
	err := LockedOut("u1")
	if err.Details["user_id"] != "u1" {
		t.Errorf("details = %v", err.Details)
	}
	if err.Error() != "user is locked out: user locked out" {
		t.Errorf("message = %q", err.Error())
	}
}
