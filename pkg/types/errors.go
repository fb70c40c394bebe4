package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested item is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when a required setting is absent or invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBusy is returned when a full-tree vectorization is already running.
	ErrBusy = errors.New("vectorization already running")

	// ErrEmbeddingFailed is returned when the embedding provider fails or
	// returns a malformed vector.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrVectorizationFailed is returned when a file or directory could not
	// be processed.
	ErrVectorizationFailed = errors.New("vectorization failed")

	// ErrStoreFailed is returned when a vector store operation fails.
	ErrStoreFailed = errors.New("store operation failed")
)

// DimensionMismatchError is returned when a vector's length differs from the
// dimension established by the first record ever written to the store. It is
// never auto-resolved: changing the embedding model requires clearing the
// store.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf(
		"vector dimension mismatch: store expects %d, got %d (changing the embedding model requires clearing the store)",
		e.Expected, e.Actual,
	)
}

// Unwrap makes the error match ErrStoreFailed in errors.Is checks.
func (e *DimensionMismatchError) Unwrap() error {
	return ErrStoreFailed
}

// IsDimensionMismatch reports whether err is a dimension mismatch.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}
