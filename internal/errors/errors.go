package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is the broad failure class callers branch on.
type Kind string

const (
	KindValidation    Kind = "validation"      // rejected before any network call
	KindTransport     Kind = "transport"       // backend unreachable, connection reset, cancelled
	KindProtocol      Kind = "protocol"        // non-success HTTP response
	KindDecode        Kind = "decode"          // response body was not the JSON we expected
	KindBusy          Kind = "busy"            // single-flight guard rejected the call
	KindSessionNotSet Kind = "session_not_set" // session-bound call without a session id
	KindNoData        Kind = "no_data"         // nothing to export
	KindStale         Kind = "stale"           // response arrived after a reset
	KindInternal      Kind = "internal"
)

// ErrorCode represents a Scout error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"       // 400
	ErrCredentialRequired  ErrorCode = "CREDENTIAL_REQUIRED"   // 401
	ErrDescriptionTooShort ErrorCode = "DESCRIPTION_TOO_SHORT" // 422
	ErrDescriptionTooLong  ErrorCode = "DESCRIPTION_TOO_LONG"  // 422
	ErrNoConditions        ErrorCode = "NO_CONDITIONS"         // 422
	ErrFileNotFound        ErrorCode = "FILE_NOT_FOUND"        // 404
	ErrFileTooLarge        ErrorCode = "FILE_TOO_LARGE"        // 413
	ErrBusy                ErrorCode = "BUSY"                  // 409
	ErrSessionNotSet       ErrorCode = "SESSION_NOT_SET"       // 412
	ErrChatLocked          ErrorCode = "CHAT_LOCKED"           // 423
	ErrNoData              ErrorCode = "NO_DATA"               // 404
	ErrStale               ErrorCode = "STALE_RESPONSE"        // 409
	ErrTransport           ErrorCode = "TRANSPORT"             // 503
	ErrCancelled           ErrorCode = "CANCELLED"             // 499
	ErrProtocol            ErrorCode = "PROTOCOL"              // backend status
	ErrDecode              ErrorCode = "DECODE"                // 502
	ErrInternal            ErrorCode = "INTERNAL"              // 500
)

// GenericMessage is used when a failure carries no usable text at all.
const GenericMessage = "request failed, please try again later"

// ScoutError represents a structured error with kind, code, status, and details.
type ScoutError struct {
	Kind    Kind
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *ScoutError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *ScoutError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 validation error.
func NewInvalidRequest(msg string) *ScoutError {
	return &ScoutError{
		Kind:    KindValidation,
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewCredentialRequired creates a 401 validation error for a missing or unverified GPSS credential.
func NewCredentialRequired(msg string) *ScoutError {
	return &ScoutError{
		Kind:    KindValidation,
		Code:    ErrCredentialRequired,
		Status:  401,
		Message: msg,
	}
}

// NewDescriptionTooShort creates a 422 error when a description is under the minimum length.
func NewDescriptionTooShort(min, actual int) *ScoutError {
	return &ScoutError{
		Kind:    KindValidation,
		Code:    ErrDescriptionTooShort,
		Status:  422,
		Message: fmt.Sprintf("description must be at least %d characters (got %d)", min, actual),
		Details: map[string]any{"min_chars": min, "actual_chars": actual},
	}
}

// NewDescriptionTooLong creates a 422 error when a description exceeds the maximum length.
func NewDescriptionTooLong(max, actual int) *ScoutError {
	return &ScoutError{
		Kind:    KindValidation,
		Code:    ErrDescriptionTooLong,
		Status:  422,
		Message: fmt.Sprintf("description must be at most %d characters (got %d)", max, actual),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewNoConditions creates a 422 error when no condition row carries a keyword.
func NewNoConditions() *ScoutError {
	return &ScoutError{
		Kind:    KindValidation,
		Code:    ErrNoConditions,
		Status:  422,
		Message: "no usable conditions: assign at least one keyword to a condition",
	}
}

// NewFileNotFound creates a 404 validation error when a file path doesn't exist.
func NewFileNotFound(path string) *ScoutError {
	return &ScoutError{
		Kind:    KindValidation,
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewFileTooLarge creates a 413 validation error when an upload exceeds the size limit.
func NewFileTooLarge(maxBytes, actualBytes int64) *ScoutError {
	return &ScoutError{
		Kind:    KindValidation,
		Code:    ErrFileTooLarge,
		Status:  413,
		Message: fmt.Sprintf("file exceeds %d MB limit (got %d bytes)", maxBytes/(1024*1024), actualBytes),
		Details: map[string]any{"max_bytes": maxBytes, "actual_bytes": actualBytes},
	}
}

// NewBusy creates a 409 error when a search of the same mode is already running.
func NewBusy(mode string) *ScoutError {
	return &ScoutError{
		Kind:    KindBusy,
		Code:    ErrBusy,
		Status:  409,
		Message: fmt.Sprintf("a %s search is already running", mode),
		Details: map[string]any{"mode": mode},
	}
}

// NewSessionNotSet creates a 412 error for session-bound calls made before a session exists.
func NewSessionNotSet() *ScoutError {
	return &ScoutError{
		Kind:    KindSessionNotSet,
		Code:    ErrSessionNotSet,
		Status:  412,
		Message: "session not set: run a search first",
	}
}

// NewChatLocked creates a 423 validation error for chat calls made before any search has succeeded.
func NewChatLocked() *ScoutError {
	return &ScoutError{
		Kind:    KindValidation,
		Code:    ErrChatLocked,
		Status:  423,
		Message: "chat is locked: it opens after the first successful search",
	}
}

// NewNoData creates a 404 error when a mode has nothing to export.
func NewNoData(mode string) *ScoutError {
	return &ScoutError{
		Kind:    KindNoData,
		Code:    ErrNoData,
		Status:  404,
		Message: fmt.Sprintf("no exportable data for %s results", mode),
		Details: map[string]any{"mode": mode},
	}
}

// NewStale creates a 409 error for a response that arrived after the client was reset.
func NewStale(mode string) *ScoutError {
	return &ScoutError{
		Kind:    KindStale,
		Code:    ErrStale,
		Status:  409,
		Message: fmt.Sprintf("%s response discarded: client was reset while it was in flight", mode),
		Details: map[string]any{"mode": mode},
	}
}

// NewTransport creates a 503 error when the backend could not be reached.
func NewTransport(endpoint string, err error) *ScoutError {
	msg := GenericMessage
	if err != nil {
		msg = err.Error()
	}
	return &ScoutError{
		Kind:    KindTransport,
		Code:    ErrTransport,
		Status:  503,
		Message: msg,
		Details: map[string]any{"endpoint": endpoint},
		cause:   err,
	}
}

// NewCancelled creates an error for an operation abandoned because its context ended.
func NewCancelled(operation string) *ScoutError {
	return &ScoutError{
		Kind:    KindTransport,
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewProtocol creates an error for a non-success HTTP response.
// The status mirrors the backend's status code.
func NewProtocol(endpoint string, status int, msg string) *ScoutError {
	if msg == "" {
		msg = GenericMessage
	}
	return &ScoutError{
		Kind:    KindProtocol,
		Code:    ErrProtocol,
		Status:  status,
		Message: msg,
		Details: map[string]any{"endpoint": endpoint, "http_status": status},
	}
}

// NewDecode creates a 502 error when a response body could not be decoded.
func NewDecode(endpoint string, err error) *ScoutError {
	msg := "response was not valid JSON"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &ScoutError{
		Kind:    KindDecode,
		Code:    ErrDecode,
		Status:  502,
		Message: msg,
		Details: map[string]any{"endpoint": endpoint},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ScoutError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ScoutError{
		Kind:    KindInternal,
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is a ScoutError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *ScoutError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
// A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var sErr *ScoutError
	if stderrors.As(err, &sErr) {
		return sErr.Kind
	}
	return KindInternal
}

// Message extracts the user-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var sErr *ScoutError
	if stderrors.As(err, &sErr) {
		if sErr.Message != "" {
			return sErr.Message
		}
		return GenericMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return GenericMessage
}
