package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoProject       = errors.New("no project selected")
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
	ErrProjectName     = errors.New("project name is required")
	ErrUploadNotFound  = errors.New("upload not found")
	ErrNoData          = errors.New("no consolidated data exists")
	ErrColumnNotFound  = errors.New("column not found")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrNoDateColumn    = errors.New("no date column configured")
	ErrNoFiles         = errors.New("no files were processed")
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoPeriodData    = errors.New("no data found for either period")
	ErrEmptyRange      = errors.New("no data in selected range")
)

// ErrSchemaMismatch is matched by every SchemaMismatchError.
var ErrSchemaMismatch = errors.New("column headers do not match")

// SchemaMismatchError reports the two column signatures that disagreed.
type SchemaMismatchError struct {
	Existing []string
	Incoming []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("column headers do not match: existing [%s], incoming [%s]",
		strings.Join(e.Existing, ", "), strings.Join(e.Incoming, ", "))
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// columnError names the missing column.
func columnError(name string) error {
	return fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// argError reports a missing or malformed request parameter.
func argError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
