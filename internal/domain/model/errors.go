package model

import (
	"errors"
	"fmt"
)

// Error categories. Every typed error below matches exactly one of them via
// errors.Is.
var (
	ErrParse      = errors.New("parse error")
	ErrValidation = errors.New("validation error")
	ErrStorage    = errors.New("storage error")
	ErrSink       = errors.New("sink error")
)

// Error kinds reported by collaborators.
var (
	ErrNotFound   = errors.New("not found")
	ErrIO         = errors.New("i/o failure")
	ErrConnection = errors.New("connection failure")
	ErrSchema     = errors.New("schema mismatch")
	ErrAuth       = errors.New("authentication failure")
)

// ParseError reports a file that could not be decoded as delimited text.
type ParseError struct {
	File string
	Line int // 0 when not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ValidationError reports a field that failed its rule.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError reports a listing or fetch failure. Err should wrap
// ErrNotFound or ErrIO.
type StorageError struct {
	Op  string // "list", "fetch", "put"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// SinkError reports a failed table replace. Err should wrap ErrConnection,
// ErrSchema or ErrAuth when the cause is known.
type SinkError struct {
	Sink  string
	Table string
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s replace %s: %v", e.Sink, e.Table, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func (e *SinkError) Is(target error) bool { return target == ErrSink }

// SinkErrorKind names the kind behind a sink error for metrics labels.
func SinkErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrAuth):
		return "auth"
	default:
		return "other"
	}
}
