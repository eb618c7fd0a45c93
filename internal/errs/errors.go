// Package errs holds the error taxonomy shared by the pipeline packages.
// Callers match with errors.Is against the sentinels; the typed errors carry
// row and field detail and unwrap to their sentinel.
package errs

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSchema     = errors.New("schema error")
	ErrParse      = errors.New("parse error")
	ErrIndexBuild = errors.New("index build failed")
	ErrEmptyIndex = errors.New("index has not been built")
	ErrNotFound   = errors.New("not found")
	ErrTimeout    = errors.New("timed out")
	ErrGeneration = errors.New("generation failed")
	ErrEmbedding  = errors.New("embedding failed")
	ErrCancelled  = errors.New("cancelled")
)

// SchemaError reports a required column that is absent from every record.
type SchemaError struct {
	Field string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "schema error: corpus is empty"
	}
	return fmt.Sprintf("schema error: required field %q missing from every record", e.Field)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ParseError reports a field of one record that could not be decoded.
// The load continues with the field set to its empty value.
type ParseError struct {
	RowID int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error: row %d field %q: cannot decode %q", e.RowID, e.Field, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// Classify maps a failure of an external call made under ctx onto the
// taxonomy. fallback is returned for anything that is not a deadline or
// cancellation.
func Classify(ctx context.Context, err error, fallback error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCancelled) || errors.Is(err, fallback) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %v", fallback, err)
}
