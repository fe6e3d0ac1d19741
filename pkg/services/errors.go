package services

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord matches every *MalformedRecordError through errors.Is.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError reports a content file whose metadata block is
// unterminated or does not follow the key: value grammar. Line is 1-based
// and 0 when the position is unknown.
type MalformedRecordError struct {
	File   string
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: malformed record: %s", file, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: malformed record: %s", file, e.Reason)
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

func malformed(file string, line int, format string, args ...any) *MalformedRecordError {
	return &MalformedRecordError{File: file, Line: line, Reason: fmt.Sprintf(format, args...)}
}

// IsMalformed reports whether err is, or wraps, a malformed record error.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}
