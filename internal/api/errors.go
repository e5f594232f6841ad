package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed API call.
type ErrorKind int

const (
	// KindTransport covers network failures and unparseable responses.
	KindTransport ErrorKind = iota
	// KindTimeout covers per-attempt deadline expiry after all retries.
	KindTimeout
	// KindBusiness covers success:false envelopes, regardless of HTTP status.
	KindBusiness
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindBusiness:
		return "business"
	default:
		return "transport"
	}
}

// Error is the single error type surfaced by the client. Business rejections
// carry the server message verbatim plus any field-level errors; transport
// and timeout failures carry a generic message and the underlying cause.
type Error struct {
	Kind        ErrorKind
	Status      int
	Message     string
	FieldErrors map[string][]string
	cause       error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("api: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("api: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// UserMessage returns the text suitable for a toast: the server message
// verbatim when present, otherwise a generic fallback per kind.
func (e *Error) UserMessage() string {
	if e.Kind == KindBusiness && e.Message != "" {
		return e.Message
	}
	if e.Kind == KindTimeout {
		return "request timed out, please try again"
	}
	return "network error, please try again"
}

// AsError unwraps err into *Error when possible.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsBusiness reports whether err is a server business rejection.
func IsBusiness(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindBusiness
}

// IsTimeout reports whether err exhausted its deadline.
func IsTimeout(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindTimeout
}
