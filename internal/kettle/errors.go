package kettle

import (
	"errors"
	"fmt"
)

var (
	ErrMissingHandler  = errors.New("kettle: missing handler")
	ErrHandlerConflict = errors.New("kettle: handler conflict")
	ErrSchemaMismatch  = errors.New("kettle: schema mismatch")
	ErrClosed          = errors.New("kettle: adapter closed")
)

// SchemaMismatchError indicates a known tag carried a payload that does not fit
// the handler's expected type.
type SchemaMismatchError struct {
	Tag  string
	Want string
	Err  error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("kettle: schema mismatch for %q (want %s): %v", e.Tag, e.Want, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.Err
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}
