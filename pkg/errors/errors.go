package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrShardEmpty             = errors.New("shard has no training rows")
	ErrNumericDivergence      = errors.New("loss became non-finite")
	ErrParameterShapeMismatch = errors.New("parameter shape mismatch")
	ErrNoUpdatesReceived      = errors.New("no updates received")
	ErrQuorumNotReached       = errors.New("quorum not reached")
	ErrVersionMismatch        = errors.New("update base version does not match")
	ErrCancelled              = errors.New("fit cancelled")
	ErrShapeMismatch          = errors.New("feature vector shape mismatch")
	ErrUnknownEngine          = errors.New("unknown model engine")
)

// RoundError tags a fit failure with the round and coordinator state it happened in.
type RoundError struct {
	Round int
	State string
	Err   error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d (%s): %v", e.Round, e.State, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether err is a per-worker failure that a retry or a
// quorum skip can absorb.
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrParameterShapeMismatch),
		errors.Is(err, ErrInvalidConfiguration),
		errors.Is(err, ErrUnknownEngine),
		errors.Is(err, ErrCancelled):
		return false
	default:
		return true
	}
}

// FromString maps an error message received over the wire back onto the
// taxonomy so that remote failures keep their classification.
func FromString(msg string) error {
	for _, known := range []error{
		ErrInvalidConfiguration,
		ErrShardEmpty,
		ErrNumericDivergence,
		ErrParameterShapeMismatch,
		ErrNoUpdatesReceived,
		ErrVersionMismatch,
		ErrShapeMismatch,
		ErrUnknownEngine,
		ErrCancelled,
	} {
		if strings.Contains(msg, known.Error()) {
			return fmt.Errorf("%w: %s", known, msg)
		}
	}

	return errors.New(msg)
}
