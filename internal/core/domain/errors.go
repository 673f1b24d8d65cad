package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed or invalid input.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedType indicates an unknown source type or backend name.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidState indicates an operation is illegal in the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotConnected indicates a fetch was attempted on a source that is not connected.
	ErrNotConnected = fmt.Errorf("%w: source not connected", ErrInvalidState)

	// ErrAlreadySyncing indicates a sync task is already running for the source.
	ErrAlreadySyncing = fmt.Errorf("%w: sync already in progress", ErrInvalidState)

	// ErrSourceFailure indicates the underlying provider failed during connect or fetch.
	ErrSourceFailure = errors.New("source failure")

	// ErrBackendUnavailable indicates the vector store or embedding backend
	// could not be initialised or reached.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRateLimited indicates the provider API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// SourceError carries diagnostic text from a failing provider.
// It matches ErrSourceFailure with errors.Is.
type SourceError struct {
	// SourceID is the source that failed.
	SourceID string
	// Op is the operation that failed (connect, fetch, ...).
	Op string
	// Err is the underlying provider error.
	Err error
}

func (e *SourceError) Error() string {
	if e.SourceID == "" {
		return fmt.Sprintf("source %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("source %s %s: %v", e.SourceID, e.Op, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSourceFailure.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceFailure
}

// NewSourceError wraps err as a provider failure for sourceID.
func NewSourceError(sourceID, op string, err error) error {
	return &SourceError{SourceID: sourceID, Op: op, Err: err}
}

// Validationf returns an ErrValidation wrapping a formatted description.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
