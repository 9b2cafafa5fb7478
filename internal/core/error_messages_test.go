package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "schema mismatch",
			err:         fmt.Errorf("merge: %w", &SchemaMismatchError{Existing: []string{"X", "Z"}, Incoming: []string{"X", "Y"}}),
			wantCode:    "SCH001",
			wantMessage: "Column headers do not match!",
		},
		{
			name:        "no project",
			err:         ErrNoProject,
			wantCode:    "PRJ001",
			wantMessage: "No project selected",
		},
		{
			name:        "project exists",
			err:         fmt.Errorf("create %q: %w", "Q1", ErrProjectExists),
			wantCode:    "PRJ003",
			wantMessage: "Project already exists",
		},
		{
			name:        "no data",
			err:         ErrNoData,
			wantCode:    "DATA001",
			wantMessage: "No consolidated file exists yet",
		},
		{
			name:        "column not found",
			err:         columnError("Region"),
			wantCode:    "DATA002",
			wantMessage: "Column not found",
		},
		{
			name:        "empty file from reader",
			err:         &xlsx.DecodeError{Path: "a.csv", Err: xlsx.ErrEmptyFile},
			wantCode:    "FILE005",
			wantMessage: "The uploaded file is empty",
		},
		{
			name:        "unsupported format from reader",
			err:         &xlsx.DecodeError{Path: "a.pdf", Err: xlsx.ErrUnsupportedFormat},
			wantCode:    "FILE006",
			wantMessage: "Unsupported file type",
		},
		{
			name:        "malformed package",
			err:         &xlsx.DecodeError{Path: "a.xlsx", Err: xlsx.ErrMalformedPackage},
			wantCode:    "FILE007",
			wantMessage: "The workbook could not be read",
		},
		{
			name:        "ragged csv",
			err:         errors.New("row 3 has 4 fields, header has 3"),
			wantCode:    "FILE002",
			wantMessage: "File is not a valid CSV",
		},
		{
			name:        "limiter busy",
			err:         ErrTooManyUploads,
			wantCode:    "UPL002",
			wantMessage: "System is busy processing other uploads",
		},
		{
			name:        "export failure",
			err:         errors.New("write package: disk full"),
			wantCode:    "EXP001",
			wantMessage: "The spreadsheet could not be written",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("PROJECT NOT FOUND"),
			wantCode:    "PRJ002",
			wantMessage: "Project not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrUploadNotFound)

	expected := "Upload not found (Code: UPL001). Refresh the upload history"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrNoDateColumn, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := &SchemaMismatchError{Existing: []string{"A"}, Incoming: []string{"B"}}
		userErr := NewUserError(techErr)

		if userErr.Error() != "Column headers do not match!" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrSchemaMismatch) {
			t.Error("errors.Is(userErr, ErrSchemaMismatch) = false, want true")
		}
	})
}
