// Package apperror defines the flat error taxonomy surfaced by the connector.
//
// Every stage of a connect attempt wraps the failure of its collaborator in an
// *Error carrying one Kind, the stage that failed and the target it was
// working on. Kind implements error so callers can match with errors.Is:
//
//	if errors.Is(err, apperror.ConnectTimeout) { ... }
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a connector failure.
type Kind int

const (
	Unknown Kind = iota
	InvalidFingerprint
	InvalidURL
	InvalidAddress
	ConstructionFailure
	NotInitialized
	ConnectTimeout
	ConnectError
	ChannelError
	ParameterBuildError
	CircuitAllocationError
	HandshakeTimeout
	HandshakeRejected
	StreamRejected
	StreamTimeout
	WriteError
	ReadError
)

var kindNames = map[Kind]string{
	Unknown:                "unknown error",
	InvalidFingerprint:     "invalid fingerprint",
	InvalidURL:             "invalid url",
	InvalidAddress:         "invalid address",
	ConstructionFailure:    "construction failure",
	NotInitialized:         "not initialized",
	ConnectTimeout:         "connect timeout",
	ConnectError:           "connect error",
	ChannelError:           "channel error",
	ParameterBuildError:    "parameter build error",
	CircuitAllocationError: "circuit allocation error",
	HandshakeTimeout:       "handshake timeout",
	HandshakeRejected:      "handshake rejected",
	StreamRejected:         "stream rejected",
	StreamTimeout:          "stream timeout",
	WriteError:             "write error",
	ReadError:              "read error",
}

// String returns the human readable name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error lets a Kind be used as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// IsTimeout reports whether the kind is one of the timeout class.
func (k Kind) IsTimeout() bool {
	switch k {
	case ConnectTimeout, HandshakeTimeout, StreamTimeout:
		return true
	default:
		return false
	}
}

// Error is a classified failure of one connector stage.
type Error struct {
	Kind   Kind
	Op     string // stage that failed, e.g. "connect", "create circuit"
	Target string // relay or stream target the stage was working on
	Err    error  // underlying cause, may be nil
}

// New builds an *Error.
func New(kind Kind, op, target string, err error) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Err: err}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind Kind, op, target, format string, args ...any) *Error {
	return New(kind, op, target, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Target != "" {
		msg += " " + e.Target
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a Kind target against e.Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind reports whether err carries kind anywhere in its chain.
func IsKind(err error, kind Kind) bool { return errors.Is(err, kind) }
