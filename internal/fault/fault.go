// Package fault defines the structured error taxonomy shared by the
// adherence engine. Every failing operation reports a kind the caller can
// act on and, for multi-stage writes, the stage that failed.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	// KindValidation marks malformed or missing input. Not retryable as-is.
	KindValidation Kind = "validation"
	// KindAuthorization marks a missing relationship or role.
	KindAuthorization Kind = "authorization"
	// KindNotFound marks an absent referenced entity.
	KindNotFound Kind = "not_found"
	// KindGenerationExhausted marks prescription-number allocation failing
	// after its retry budget. Nothing was persisted; safe to resubmit.
	KindGenerationExhausted Kind = "generation_exhausted"
	// KindPartialWrite marks a staged write that failed after earlier
	// stages were persisted. Stage names what to inspect.
	KindPartialWrite Kind = "partial_write"
	// KindInternal marks everything else.
	KindInternal Kind = "internal"
)

// Stage identifies which step of a staged operation failed.
type Stage string

const (
	StagePatient     Stage = "patient"
	StageDoctor      Stage = "doctor"
	StageValidation  Stage = "validation"
	StagePlan        Stage = "plan"
	StageMedications Stage = "medications"
	StageDoses       Stage = "doses"
)

// Error carries a kind, an optional stage, and a wrapped cause.
type Error struct {
	Kind  Kind
	Stage Stage
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Stage != "" && e.Err != nil:
		return fmt.Sprintf("%s (stage %s): %s: %v", e.Kind, e.Stage, e.Msg, e.Err)
	case e.Stage != "":
		return fmt.Sprintf("%s (stage %s): %s", e.Kind, e.Stage, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Stage: StageValidation, Msg: fmt.Sprintf(format, args...)}
}

// Authorization builds an authorization error.
func Authorization(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// GenerationExhausted builds a number-allocation failure.
func GenerationExhausted(attempts int) *Error {
	return &Error{
		Kind: KindGenerationExhausted,
		Msg:  fmt.Sprintf("prescription number allocation failed after %d attempts", attempts),
	}
}

// PartialWrite wraps a store failure that happened after earlier stages
// were already persisted.
func PartialWrite(stage Stage, err error) *Error {
	return &Error{Kind: KindPartialWrite, Stage: stage, Msg: "write failed", Err: err}
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StageOf returns the failed stage of err, if any.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
