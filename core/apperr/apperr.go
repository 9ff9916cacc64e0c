// Package apperr defines the error kinds surfaced by the playback and
// library engine. Components wrap lower-level failures in *Error so the
// transport layer can map them to a status and a user-facing message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	// AuthRequired: the operation needs an authenticated user.
	AuthRequired
	// ValidationError: a required field is missing or malformed.
	ValidationError
	// RemoteUnavailable: the remote data store failed or timed out.
	RemoteUnavailable
	// PlaybackUnavailable: the media engine could not load or play.
	PlaybackUnavailable
	// RaceConditionConflict: a concurrent change to the same like relation.
	RaceConditionConflict
)

func (k Kind) String() string {
	switch k {
	case AuthRequired:
		return "AuthRequired"
	case ValidationError:
		return "ValidationError"
	case RemoteUnavailable:
		return "RemoteUnavailable"
	case PlaybackUnavailable:
		return "PlaybackUnavailable"
	case RaceConditionConflict:
		return "RaceConditionConflict"
	default:
		return "Unknown"
	}
}

// Code is the wire form used in JSON error bodies.
func (k Kind) Code() string {
	switch k {
	case AuthRequired:
		return "AUTH_REQUIRED"
	case ValidationError:
		return "VALIDATION_ERROR"
	case RemoteUnavailable:
		return "REMOTE_UNAVAILABLE"
	case PlaybackUnavailable:
		return "PLAYBACK_UNAVAILABLE"
	case RaceConditionConflict:
		return "RACE_CONDITION_CONFLICT"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps a kind to a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case AuthRequired:
		return http.StatusUnauthorized
	case ValidationError:
		return http.StatusBadRequest
	case RemoteUnavailable:
		return http.StatusServiceUnavailable
	case PlaybackUnavailable:
		return http.StatusUnprocessableEntity
	case RaceConditionConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Message is safe to show to a user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of kind with a user-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether repeating the call may succeed. Only remote
// store failures qualify; a cancelled request never does.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrSuperseded) {
		return false
	}
	return KindOf(err) == RemoteUnavailable
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Something went wrong."
}

// ErrSuperseded is returned to callers whose request was overtaken by a
// newer one for the same target. It is a discard signal, not a failure.
var ErrSuperseded = errors.New("request superseded by a newer one")
