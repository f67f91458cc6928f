package causal

import "fmt"

// ValidationError reports malformed input to Store: out-of-range numeric
// fields or missing required ids. Never retried automatically.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// InvalidArgumentError reports bad traversal parameters (non-positive
// maxDepth, unrecognized direction).
type InvalidArgumentError struct {
	Arg string
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s: %s", e.Arg, e.Msg)
}

// StorageError wraps any failure from the underlying database. It is
// propagated unchanged to the caller; the store performs no retries.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
