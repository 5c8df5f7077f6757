package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrStore marks failures of the underlying database. They are fatal to a run.
	ErrStore = errors.New("store error")
	// ErrNotPending is returned when a transition targets a row that is missing
	// or no longer pending. The row is left unchanged.
	ErrNotPending = errors.New("item is not pending")
	// ErrInvalidLimit is returned by FetchPending for non-positive limits.
	ErrInvalidLimit = errors.New("fetch limit must be positive")
)

// StoreError wraps a database failure with the operation that produced it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets callers match any StoreError with errors.Is(err, ErrStore).
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StoreError
	if errors.As(err, &existing) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func notPending(path string) error {
	return fmt.Errorf("%w: %s", ErrNotPending, path)
}
