package models

import (
	"fmt"
	"strings"
)

// MaxNoteLength bounds the error text written into a record's notes column
const MaxNoteLength = 500

// ConfigurationError reports missing or invalid extraction descriptors.
// It is fatal for the job and raised before any record is processed.
type ConfigurationError struct {
	Fields []string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("extraction configuration invalid: missing or invalid %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("extraction configuration invalid: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RecordError is a failure confined to one record
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index+1, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Note returns the underlying message truncated to MaxNoteLength runes
func (e *RecordError) Note() string {
	return Truncate(e.Err.Error(), MaxNoteLength)
}

// Truncate shortens s to at most n runes
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
