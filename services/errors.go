package services

import (
	"errors"
	"fmt"
)

var ErrInvalidInput = errors.New("invalid input")

// StoreError is a failed read or write against the data store. Always fatal for the call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("gamification store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
