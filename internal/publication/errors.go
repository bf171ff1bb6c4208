package publication

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrDateParse              = errors.New("date parse error")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrConflict               = errors.New("conflict")
	ErrInvalidPage            = errors.New("invalid page")
	ErrInvalidInput           = errors.New("invalid input")
)

// TransitionError reports a rejected transition with the current and requested states.
type TransitionError struct {
	From      State
	Action    Action
	Requested State
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s -> %s (%s)", ErrInvalidStateTransition, e.From, e.Requested, e.Action)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

func invalidTransition(from State, action Action, reason string) error {
	return &TransitionError{
		From:      from,
		Action:    action,
		Requested: action.Requested(),
		Reason:    reason,
	}
}

// DateParseError carries the raw value that could not be read as an instant.
type DateParseError struct {
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %q: %v", ErrDateParse, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %q", ErrDateParse, e.Value)
}

func (e *DateParseError) Is(target error) bool {
	return target == ErrDateParse
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}

// PermissionError names the actor and action that were refused.
type PermissionError struct {
	Actor  string
	Action Action
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: actor %q may not %s", ErrPermissionDenied, e.Actor, e.Action)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}
