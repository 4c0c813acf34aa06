package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound = errors.New("resource not found")

	ErrUnauthorized = errors.New("unauthorized")

	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput indicates a required argument is missing or malformed
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials indicates a password or token did not verify
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrDuplicateUsername = errors.New("duplicate username")
	ErrDuplicateEmail    = errors.New("duplicate email")

	// ErrLockedOut indicates the account is locked out until its lockout end date
	ErrLockedOut = errors.New("user locked out")

	// ErrBulkDelete indicates at least one row survived both the batch and per-item delete attempts
	ErrBulkDelete = errors.New("bulk delete incomplete")
)

// Kind classifies an error. Its string form is the machine readable code
// written to API clients.
type Kind string

const (
	KindInternal          Kind = "internal_error"
	KindBadRequest        Kind = "bad_request"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindDuplicateUsername Kind = "duplicate_username"
	KindDuplicateEmail    Kind = "duplicate_email"
	KindLockedOut         Kind = "locked_out"
)

var kindStatus = map[Kind]int{
	KindBadRequest:        http.StatusBadRequest,
	KindUnauthorized:      http.StatusUnauthorized,
	KindForbidden:         http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindDuplicateUsername: http.StatusConflict,
	KindDuplicateEmail:    http.StatusConflict,
	KindLockedOut:         http.StatusLocked,
}

// Status returns the HTTP status for k
func (k Kind) Status() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// sentinelKinds classifies bare sentinels that never passed through an AppError
var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrLockedOut, KindLockedOut},
	{ErrDuplicateUsername, KindDuplicateUsername},
	{ErrDuplicateEmail, KindDuplicateEmail},
	{ErrNotFound, KindNotFound},
	{ErrInvalidInput, KindBadRequest},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidCredentials, KindUnauthorized},
	{ErrForbidden, KindForbidden},
}

// AppError is an error with a Kind, a client facing message and optional details
type AppError struct {
	Kind    Kind                   `json:"error"`
	Message string                 `json:"message"`
	Err     error                  `json:"-"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error
func (e *AppError) HTTPStatus() int {
	return e.Kind.Status()
}

func newError(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func (e *AppError) with(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf classifies err by the outermost AppError in its chain, falling
// back to the package sentinels. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

// NotFound creates a new not found error
func NotFound(resource string, err error) *AppError {
	return newError(KindNotFound, resource+" not found", err)
}

func Unauthorized(message string, err error) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return newError(KindUnauthorized, message, err)
}

// InvalidArgument reports a required argument that was absent or empty.
func InvalidArgument(name string) *AppError {
	return newError(KindBadRequest, fmt.Sprintf("argument %q is required", name), ErrInvalidInput).
		with("argument", name)
}

// InvalidArgumentf reports an argument that was present but unusable.
func InvalidArgumentf(name, format string, args ...interface{}) *AppError {
	return newError(KindBadRequest, fmt.Sprintf("argument %q: %s", name, fmt.Sprintf(format, args...)), ErrInvalidInput).
		with("argument", name)
}

// ValidationError reports a request field that failed validation
func ValidationError(field, message string) *AppError {
	return newError(KindBadRequest, message, ErrInvalidInput).with("field", field)
}

func Conflict(message string, err error) *AppError {
	return newError(KindConflict, message, err)
}

// DuplicateUsername is raised when the username index already holds the name.
func DuplicateUsername(username string) *AppError {
	return newError(KindDuplicateUsername, fmt.Sprintf("username %q is already taken", username), ErrDuplicateUsername)
}

// DuplicateEmail is raised when the email index already holds the address.
func DuplicateEmail(email string) *AppError {
	return newError(KindDuplicateEmail, fmt.Sprintf("email %q is already taken", email), ErrDuplicateEmail)
}

// LockedOut is returned while a user's lockout end date lies in the future.
func LockedOut(userID string) *AppError {
	return newError(KindLockedOut, "user is locked out", ErrLockedOut).with("user_id", userID)
}

func InternalError(message string, err error) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return newError(KindInternal, message, err)
}

// StorageError wraps a failed table store operation
func StorageError(operation string, err error) *AppError {
	return newError(KindInternal, fmt.Sprintf("storage %s failed", operation), err)
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
func IsForbidden(err error) bool    { return KindOf(err) == KindForbidden }
func IsBadRequest(err error) bool   { return KindOf(err) == KindBadRequest }
func IsLockedOut(err error) bool    { return KindOf(err) == KindLockedOut }

// IsConflict reports conflicts, including username and email uniqueness violations
func IsConflict(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindDuplicateUsername, KindDuplicateEmail:
		return true
	}
	return false
}

func IsDuplicateUsername(err error) bool { return KindOf(err) == KindDuplicateUsername }
func IsDuplicateEmail(err error) bool    { return KindOf(err) == KindDuplicateEmail }
