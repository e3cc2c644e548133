package errors

import (
	"errors"
	"fmt"
)

// RejectCode is the category the system attaches to a rejected call.
type RejectCode uint32

const (
	// RejectUnknown marks failures that never reached the system, such as a
	// broken transport. It is not a code the system itself produces.
	RejectUnknown            RejectCode = 0
	RejectSysFatal           RejectCode = 1
	RejectSysTransient       RejectCode = 2
	RejectDestinationInvalid RejectCode = 3
	RejectCanisterReject     RejectCode = 4
	RejectCanisterError      RejectCode = 5
	RejectSysUnknown         RejectCode = 6
)

var rejectCodeNames = map[RejectCode]string{
	RejectUnknown:            "Unknown",
	RejectSysFatal:           "SysFatal",
	RejectSysTransient:       "SysTransient",
	RejectDestinationInvalid: "DestinationInvalid",
	RejectCanisterReject:     "CanisterReject",
	RejectCanisterError:      "CanisterError",
	RejectSysUnknown:         "SysUnknown",
}

func (c RejectCode) String() string {
	if name, ok := rejectCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("RejectCode(%d)", uint32(c))
}

// CallError is a failed call. Code and Message are kept exactly as the
// system delivered them.
type CallError struct {
	Cause   error
	Message string
	Code    RejectCode
}

// NewCallError creates a call error from a system rejection.
func NewCallError(code RejectCode, message string) *CallError {
	return &CallError{Code: code, Message: message}
}

func (e *CallError) Error() string {
	return fmt.Sprintf("[call] rejected (%s, code %d): %s", e.Code, uint32(e.Code), e.Message)
}

// Unwrap returns the underlying transport error, if any
func (e *CallError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *CallError with the same code. A target
// with RejectUnknown code and empty message matches any CallError.
func (e *CallError) Is(target error) bool {
	t, ok := target.(*CallError)
	if !ok {
		return false
	}
	if t.Code == RejectUnknown && t.Message == "" {
		return true
	}
	return e.Code == t.Code
}

// AsCallError returns the first *CallError in err's chain.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
