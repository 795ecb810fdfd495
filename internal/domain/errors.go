package domain

import "errors"

// Format errors: a persisted or wire value cannot be represented.
var (
	ErrInvalidFormat   = errors.New("invalid format")
	ErrInvalidRole     = errors.New("invalid role")
	ErrNulByteInString = errors.New("nul byte in string")
)

// Protocol errors: a request body is unusable.
var (
	ErrInvalidJSON     = errors.New("invalid json")
	ErrMissingMessages = errors.New("missing messages")
)

var (
	ErrPolicyDenied     = errors.New("denied by policy")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrStreamState      = errors.New("chunk stream used out of order")
	ErrEngine           = errors.New("engine failure")
)

// IsFormatError reports whether err is one of the format errors.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrNulByteInString)
}

// IsProtocolError reports whether err is one of the protocol errors.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrInvalidJSON) || errors.Is(err, ErrMissingMessages)
}
