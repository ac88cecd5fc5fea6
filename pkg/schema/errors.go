package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeNetwork    = "NETWORK_ERROR"
	ErrCodeRemote     = "REMOTE_ERROR"
	ErrCodeDecode     = "DECODE_ERROR"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeExpression = "EXPRESSION_ERROR"

	// Issue codes used by the validator for graph-level problems.
	ErrCodeDuplicateID     = "DUPLICATE_ID"
	ErrCodeDanglingRef     = "DANGLING_REFERENCE"
	ErrCodeSelfConnection  = "SELF_CONNECTION"
	ErrCodeDuplicateEdge   = "DUPLICATE_CONNECTION"
	ErrCodeUnknownKind     = "UNKNOWN_NODE_TYPE"
	ErrCodeUnmatchedOutput = "UNMATCHED_CONDITION"
	ErrCodeUnreachable     = "UNREACHABLE_NODE"
	ErrCodeMissingStart    = "MISSING_START"
	ErrCodeRule            = "RULE_VIOLATION"
)

// Error is the structured error type returned across package boundaries.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code string) bool {
	se, ok := err.(*Error)
	if !ok {
		return false
	}
	return se.Code == code
}
