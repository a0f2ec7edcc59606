// Package editerr defines the error taxonomy shared by the retouching core.
//
// Every error produced by the history engine is session-local and
// recoverable: callers retry, or continue from the last known-good working
// image. The four families are:
//
//   - InputError: rejected before reaching the application engine
//     (empty stroke, out-of-range intensity or brush values).
//   - ApplicationError: a single operation failed inside the engine; the
//     operation is discarded and the log/image are unchanged.
//   - ReplayError: an operation failed while an undo (or restore) replayed
//     the log; the whole replay is rolled back.
//   - ConcurrencyError: a mutation was requested while another was in flight.
//
// Each typed error matches its sentinel with errors.Is, so boundary code
// can branch on the family without type assertions.
package editerr

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks.
var (
	ErrInput         = errors.New("invalid input")
	ErrApplication   = errors.New("operation application failed")
	ErrReplay        = errors.New("replay failed")
	ErrBusy          = errors.New("edit already in progress")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// InputError reports a value rejected before any image work was attempted.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Is(target error) bool { return target == ErrInput }

// Input is shorthand for constructing an InputError.
func Input(field, format string, args ...any) *InputError {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ApplicationErrorKind categorizes failures raised by the application engine.
type ApplicationErrorKind int

const (
	// KindUnsupportedTool means no kernel is registered for the operation's tool family.
	KindUnsupportedTool ApplicationErrorKind = iota
	// KindInvalidParameters means the operation failed engine-side validation.
	KindInvalidParameters
	// KindKernelFailure means the raster kernel returned an error.
	KindKernelFailure
	// KindCancelled means the caller cancelled the apply before it resolved.
	KindCancelled
)

func (k ApplicationErrorKind) String() string {
	switch k {
	case KindUnsupportedTool:
		return "unsupported_tool"
	case KindInvalidParameters:
		return "invalid_parameters"
	case KindKernelFailure:
		return "kernel_failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ApplicationError wraps a failure applying one operation.
type ApplicationError struct {
	Kind        ApplicationErrorKind
	Tool        string
	OperationID string
	Err         error
}

func (e *ApplicationError) Error() string {
	msg := fmt.Sprintf("apply %s (op %s): %s", e.Tool, e.OperationID, e.Kind)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ApplicationError) Unwrap() error { return e.Err }

func (e *ApplicationError) Is(target error) bool { return target == ErrApplication }

// ReplayError reports the operation that broke a replay. Index is the
// zero-based position of that operation in the replayed sequence.
type ReplayError struct {
	Index       int
	OperationID string
	Err         error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay failed at operation %d (%s): %v", e.Index, e.OperationID, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

func (e *ReplayError) Is(target error) bool { return target == ErrReplay }

// ConcurrencyError is returned when a mutation is requested while the
// history manager is not idle.
type ConcurrencyError struct {
	Requested string
	State     string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Requested, e.State)
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrBusy }
