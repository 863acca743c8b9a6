package importer

// errors.go defines the failure taxonomy of the import pipeline and maps it
// to user-facing messages with support codes.
//
// Error codes by category:
//
//	FILE001 - File could not be read (I/O, cancellation, size, encoding)
//	FILE002 - File is empty or has no parsable lines
//	FILE003 - Import options are invalid (delimiter)
//	MAP001  - Required fields are not mapped to a column
//	MAP002  - Unknown target field
//	MAP003  - Unknown source column
//	VAL001  - No row passed validation
//	WF001   - Action not allowed at the current stage
//	WF002   - Unknown entity type
//	SINK001 - The sink rejected the commit
//	ERR000  - Unexpected failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFileRead means the source file could not be read at all.
	ErrFileRead = errors.New("file read error")

	// ErrEmptyOrMalformed means tokenizing produced zero rows.
	ErrEmptyOrMalformed = errors.New("empty or malformed file")

	// ErrMappingIncomplete means one or more required fields are unmapped.
	ErrMappingIncomplete = errors.New("mapping incomplete")

	// ErrNoValidRows means every data row failed validation.
	ErrNoValidRows = errors.New("no valid rows")

	// ErrUnknownProcessing wraps unexpected failures caught at a stage boundary.
	ErrUnknownProcessing = errors.New("unexpected processing error")

	ErrInvalidStage   = errors.New("invalid stage")
	ErrInvalidOptions = errors.New("invalid options")
	ErrUnknownEntity  = errors.New("unknown entity type")
	ErrUnknownField   = errors.New("unknown field")
	ErrUnknownHeader  = errors.New("unknown source column")
	ErrCommitFailed   = errors.New("commit failed")
)

// MappingIncompleteError lists the required fields that have no source column.
type MappingIncompleteError struct {
	Missing []FieldSpec
}

func (e *MappingIncompleteError) Error() string {
	labels := make([]string, len(e.Missing))
	for i, spec := range e.Missing {
		labels[i] = spec.Label
	}
	return fmt.Sprintf("required fields not mapped: %s", strings.Join(labels, ", "))
}

// Is makes errors.Is(err, ErrMappingIncomplete) succeed.
func (e *MappingIncompleteError) Is(target error) bool {
	return target == ErrMappingIncomplete
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorCode struct {
	target error
	msg    UserMessage
}

// errorCodes is checked in order with errors.Is; the first match wins.
var errorCodes = []errorCode{
	{ErrFileRead, UserMessage{
		Message: "The file could not be read",
		Action:  "Check the file and its encoding, then select it again",
		Code:    "FILE001",
	}},
	{ErrEmptyOrMalformed, UserMessage{
		Message: "The file is empty or could not be parsed",
		Action:  "Select a delimited text file with at least one line",
		Code:    "FILE002",
	}},
	{ErrInvalidOptions, UserMessage{
		Message: "The import options are invalid",
		Action:  "Choose a comma, semicolon, tab or pipe delimiter",
		Code:    "FILE003",
	}},
	{ErrMappingIncomplete, UserMessage{
		Message: "Some required fields are not mapped",
		Action:  "Assign a column to every required field",
		Code:    "MAP001",
	}},
	{ErrUnknownField, UserMessage{
		Message: "Unknown target field",
		Action:  "Pick a field from the entity schema",
		Code:    "MAP002",
	}},
	{ErrUnknownHeader, UserMessage{
		Message: "Unknown source column",
		Action:  "Pick a column present in the file",
		Code:    "MAP003",
	}},
	{ErrNoValidRows, UserMessage{
		Message: "No row passed validation",
		Action:  "Fill the required columns or adjust the mapping",
		Code:    "VAL001",
	}},
	{ErrInvalidStage, UserMessage{
		Message: "This action is not available at the current step",
		Action:  "Finish the current step or restart the import",
		Code:    "WF001",
	}},
	{ErrUnknownEntity, UserMessage{
		Message: "Unknown entity type",
		Action:  "Choose one of the supported entity types",
		Code:    "WF002",
	}},
	{ErrCommitFailed, UserMessage{
		Message: "The records could not be saved",
		Action:  "Please try again in a few moments",
		Code:    "SINK001",
	}},
}

// defaultMessage is returned when no sentinel matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
// Returns the zero UserMessage for nil and the ERR000 fallback for errors
// outside the taxonomy.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.target) {
			return ec.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err belongs to the taxonomy (not ERR000).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
