package verify

import "fmt"

// Error is the canonical error shape surfaced by the verification engine.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Param     string    `json:"param,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrSetup          ErrorType = "setup_error"
	ErrProvider       ErrorType = "provider_error"
	ErrCancelled      ErrorType = "cancelled_error"
	ErrAPI            ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewSetupError creates an unrecoverable setup error (no camera, no
// media-capture capability). Sessions failing here never enter capture.
func NewSetupError(message string) *Error {
	return &Error{Type: ErrSetup, Message: message}
}

// NewProviderError creates an error for a failing external collaborator.
func NewProviderError(message string) *Error {
	return &Error{Type: ErrProvider, Message: message}
}

// NewCancelledError creates the terminal error for a user-cancelled
// session. Cancellation is distinct from failure.
func NewCancelledError() *Error {
	return &Error{Type: ErrCancelled, Message: "session cancelled", Code: "cancelled"}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}
