package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyWorkbook = errors.New("workbook has no sheets")
	ErrNoHeader      = errors.New("sheet has no header row")
	ErrUnknownTable  = errors.New("unknown table")
)

// SchemaError reports required columns missing from a dataset. The message
// names every missing column and is safe to show to the end user.
type SchemaError struct {
	Missing []Column
}

func (e *SchemaError) Error() string {
	names := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		names[i] = string(c)
	}
	return "missing required columns: " + strings.Join(names, ", ")
}

// UnexpectedError wraps any failure while reading or transforming a file
// that is not a schema mismatch.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// Unexpected wraps err as an UnexpectedError unless it already is one or
// is a SchemaError.
func Unexpected(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return err
	}
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return err
	}
	return &UnexpectedError{Op: op, Err: err}
}

// IsSchemaError reports whether err carries a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
