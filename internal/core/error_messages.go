package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference. Codes by category:
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Column mismatch: the upload's headers differ from the project's
//	         Action: Upload a file with the same columns in the same order
//	         Patterns: "column headers do not match"
//
// # Project Errors (PRJ001-PRJ099)
//
//	PRJ001 - No project: no project is selected
//	         Action: Create or select a project first
//	         Patterns: "no project selected"
//
//	PRJ002 - Project not found
//	         Action: Refresh the project list
//	         Patterns: "project not found"
//
//	PRJ003 - Project exists: a project with this name already exists
//	         Action: Choose a different name
//	         Patterns: "project already exists", "project name is required"
//
// # Data Errors (DATA001-DATA099)
//
//	DATA001 - No data: nothing has been consolidated yet
//	          Action: Upload a file first
//	          Patterns: "no consolidated data", "no files were processed"
//
//	DATA002 - Column not found
//	          Action: Refresh the page to reload the column list
//	          Patterns: "column not found"
//
//	DATA003 - No date column configured
//	          Action: Pick a date column in the dashboard settings
//	          Patterns: "no date column"
//
//	DATA004 - Invalid request parameter
//	          Action: Check the selected filters and try again
//	          Patterns: "invalid argument"
//
//	DATA005 - Empty selection: the chosen dates contain no rows
//	          Action: Widen the date range
//	          Patterns: "no data found for either period", "no data in selected range"
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Export failed: the spreadsheet could not be written
//	         Action: Please try again; if it persists download as CSV
//	         Patterns: "write package", "finalize package", "encode sheet"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: file exceeds the maximum upload size
//	FILE002 - Invalid CSV: file is not a valid CSV
//	FILE003 - Encoding error: file contains invalid characters
//	FILE004 - No file: no file was selected
//	FILE005 - Empty file: the uploaded file is empty
//	FILE006 - Unsupported type: only .xlsx, .xls and .csv are accepted
//	FILE007 - Malformed spreadsheet: the workbook could not be read
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Upload not found
//	UPL002 - System busy: too many uploads in progress
//	UPL004 - Request cancelled
//	UPL005 - Request timed out
//
// # Task and Rate Errors
//
//	TSK001 - Task not found
//	RATE001 - Too many requests
//	DB004 - Audit database unreachable
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the application logs for
// the original technical error when users report ERR000.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Schema
	{
		pattern: "column headers do not match",
		msg: UserMessage{
			Message: "Column headers do not match!",
			Action:  "Upload a file with the same columns in the same order as the existing data",
			Code:    "SCH001",
		},
	},

	// Projects
	{
		pattern: "no project selected",
		msg: UserMessage{
			Message: "No project selected",
			Action:  "Create or select a project first",
			Code:    "PRJ001",
		},
	},
	{
		pattern: "project not found",
		msg: UserMessage{
			Message: "Project not found",
			Action:  "Refresh the project list",
			Code:    "PRJ002",
		},
	},
	{
		pattern: "project already exists",
		msg: UserMessage{
			Message: "Project already exists",
			Action:  "Choose a different project name",
			Code:    "PRJ003",
		},
	},
	{
		pattern: "project name is required",
		msg: UserMessage{
			Message: "Project name is required",
			Action:  "Enter a project name",
			Code:    "PRJ003",
		},
	},

	// Data
	{
		pattern: "no consolidated data",
		msg: UserMessage{
			Message: "No consolidated file exists yet",
			Action:  "Upload a file first",
			Code:    "DATA001",
		},
	},
	{
		pattern: "no files were processed",
		msg: UserMessage{
			Message: "No files were processed",
			Action:  "Check the failed files list and try again",
			Code:    "DATA001",
		},
	},
	{
		pattern: "column not found",
		msg: UserMessage{
			Message: "Column not found",
			Action:  "Refresh the page to reload the column list",
			Code:    "DATA002",
		},
	},
	{
		pattern: "no date column",
		msg: UserMessage{
			Message: "No date column configured",
			Action:  "Pick a date column in the dashboard settings",
			Code:    "DATA003",
		},
	},
	{
		pattern: "invalid argument",
		msg: UserMessage{
			Message: "Missing or invalid parameters",
			Action:  "Check the selected filters and try again",
			Code:    "DATA004",
		},
	},
	{
		pattern: "no data found for either period",
		msg: UserMessage{
			Message: "No data found for either period",
			Action:  "Widen the date range",
			Code:    "DATA005",
		},
	},
	{
		pattern: "no data in selected range",
		msg: UserMessage{
			Message: "No data in selected range",
			Action:  "Widen the date range",
			Code:    "DATA005",
		},
	},

	// Export
	{
		pattern: "write package",
		msg: UserMessage{
			Message: "The spreadsheet could not be written",
			Action:  "Please try again; if it persists download as CSV",
			Code:    "EXP001",
		},
	},
	{
		pattern: "finalize package",
		msg: UserMessage{
			Message: "The spreadsheet could not be written",
			Action:  "Please try again; if it persists download as CSV",
			Code:    "EXP001",
		},
	},
	{
		pattern: "encode sheet",
		msg: UserMessage{
			Message: "The spreadsheet could not be written",
			Action:  "Please try again; if it persists download as CSV",
			Code:    "EXP001",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "fields, header has",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "file is empty",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header row and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unsupported file",
		msg: UserMessage{
			Message: "Unsupported file type",
			Action:  "Upload .xlsx, .xls or .csv files",
			Code:    "FILE006",
		},
	},
	{
		pattern: "malformed spreadsheet",
		msg: UserMessage{
			Message: "The workbook could not be read",
			Action:  "Open the file in a spreadsheet program and save it again",
			Code:    "FILE007",
		},
	},

	// Uploads
	{
		pattern: "upload not found",
		msg: UserMessage{
			Message: "Upload not found",
			Action:  "Refresh the upload history",
			Code:    "UPL001",
		},
	},
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try uploading a smaller file or check your connection",
			Code:    "UPL005",
		},
	},

	// Tasks, rate limiting, audit database
	{
		pattern: "task not found",
		msg: UserMessage{
			Message: "Task not found",
			Action:  "The task may have expired",
			Code:    "TSK001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. If no
// pattern matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
