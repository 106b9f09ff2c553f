package store

import (
	"errors"
	"fmt"
)

// ErrStoreFailure matches every error returned by a Gateway.
var ErrStoreFailure = errors.New("store failure")

// StoreError records the gateway operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
