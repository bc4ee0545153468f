package meater

import (
	"errors"
	"fmt"
)

// Class groups error kinds by how far their impact reaches.
type Class string

const (
	ClassConfig   Class = "config"
	ClassAuth     Class = "auth"
	ClassRemote   Class = "remote"
	ClassProtocol Class = "protocol"
	ClassNetwork  Class = "network"
)

// Kind is the precise failure inside a class.
type Kind string

const (
	KindMissingCredentials Kind = "missing_credentials"
	KindMissingToken       Kind = "missing_token"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthorized       Kind = "unauthorized"
	KindBadRequest         Kind = "bad_request"
	KindNotFound           Kind = "not_found"
	KindRateLimited        Kind = "rate_limited"
	KindServerError        Kind = "server_error"
	KindUnknown            Kind = "unknown"
	KindMalformedResponse  Kind = "malformed_response"
	KindTransport          Kind = "transport"
)

// Error is the single error type returned by the client and the session layer.
// Transport and Payload hold the HTTP status and the API's own statusCode when known.
type Error struct {
	Class     Class
	Kind      Kind
	Op        string
	Transport int
	Payload   int
	Err       error
}

// Sentinels for errors.Is. Only Class and Kind take part in the comparison.
var (
	ErrMissingCredentials = &Error{Class: ClassConfig, Kind: KindMissingCredentials}
	ErrMissingToken       = &Error{Class: ClassConfig, Kind: KindMissingToken}
	ErrInvalidCredentials = &Error{Class: ClassAuth, Kind: KindInvalidCredentials}
	ErrUnauthorized       = &Error{Class: ClassAuth, Kind: KindUnauthorized}
	ErrNotFound           = &Error{Class: ClassRemote, Kind: KindNotFound}
	ErrRateLimited        = &Error{Class: ClassRemote, Kind: KindRateLimited}
	ErrServerError        = &Error{Class: ClassRemote, Kind: KindServerError}
	ErrMalformedResponse  = &Error{Class: ClassProtocol, Kind: KindMalformedResponse}
	ErrTransport          = &Error{Class: ClassNetwork, Kind: KindTransport}
)

func (e *Error) Error() string {
	msg := string(e.Class) + " error: " + string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Transport != 0 || e.Payload != 0 {
		msg += fmt.Sprintf(" (http %d, api %d)", e.Transport, e.Payload)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Has reports whether either the transport or the payload status falls in cat.
func (e *Error) Has(cat Category) bool {
	return (e.Transport != 0 && Classify(e.Transport) == cat) || (e.Payload != 0 && Classify(e.Payload) == cat)
}

// Is matches on class and kind so wrapped instances compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Kind == t.Kind
}

// ClassOf returns the class of err, or "" if err is not an *Error.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsSessionFatal reports whether err aborts the whole discovery/poll cycle:
// no device can be fetched until configuration or credentials are fixed.
func IsSessionFatal(err error) bool {
	c := ClassOf(err)
	return c == ClassConfig || c == ClassAuth
}

func newError(op string, class Class, kind Kind, err error) *Error {
	return &Error{Op: op, Class: class, Kind: kind, Err: err}
}
