// Package dserr defines the error taxonomy shared by the directory session,
// the task-queue relay and the envelope codec.
package dserr

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge failure.
type Kind string

const (
	KindNotFound          Kind = "not_found"          // identity search returned zero objects
	KindAmbiguous         Kind = "ambiguous"          // identity search returned more than one object
	KindValidation        Kind = "validation"         // caller input rejected before the wire
	KindConnectivity      Kind = "connectivity"       // all configured hosts unreachable
	KindDirectoryRejected Kind = "directory_rejected" // server refused a write operation
	KindTimeout           Kind = "timeout"            // no worker answered in time
	KindCrypto            Kind = "crypto"             // envelope decode or authentication failure
)

// Error is a typed bridge failure carrying a human-readable message.
type Error struct {
	Op      string // operation that failed, e.g. "get_user"
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error.
func New(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error with an underlying cause.
func Wrap(op string, kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err, or "" if err is not a bridge error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsAmbiguous reports whether err is an ambiguous-result failure.
func IsAmbiguous(err error) bool { return IsKind(err, KindAmbiguous) }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsTimeout reports whether err is a queue timeout.
func IsTimeout(err error) bool { return IsKind(err, KindTimeout) }

// IsCrypto reports whether err is an envelope failure.
func IsCrypto(err error) bool { return IsKind(err, KindCrypto) }
