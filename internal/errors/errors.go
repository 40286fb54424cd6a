// Package errors defines the typed failures surfaced by the assistant core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure so callers can tell infrastructure faults from
// expected empty results.
type Kind string

const (
	KindStorage        Kind = "STORAGE"
	KindIngestion      Kind = "INGESTION"
	KindRetrieval      Kind = "RETRIEVAL"
	KindExtraction     Kind = "EXTRACTION"
	KindScheduling     Kind = "SCHEDULING"
	KindAuthentication Kind = "AUTHENTICATION"
	KindInvalidRequest Kind = "INVALID_REQUEST"
)

// Error is a structured failure carrying the kind, the operation that failed
// and the underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewStorage wraps an index or database failure.
func NewStorage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// NewIngestion reports a single file that could not be ingested.
func NewIngestion(file string, err error) *Error {
	return &Error{
		Kind:    KindIngestion,
		Op:      "ingest",
		Message: fmt.Sprintf("file %s", file),
		Details: map[string]any{"file": file},
		Err:     err,
	}
}

// NewRetrieval wraps a failed search, embedding or completion call.
func NewRetrieval(op string, err error) *Error {
	return &Error{Kind: KindRetrieval, Op: op, Err: err}
}

// NewExtraction reports a candidate that could not be extracted.
func NewExtraction(msg string) *Error {
	return &Error{Kind: KindExtraction, Op: "extract", Message: msg}
}

// NewScheduling wraps a per-event calendar failure.
func NewScheduling(title string, err error) *Error {
	return &Error{
		Kind:    KindScheduling,
		Op:      "create event",
		Message: title,
		Details: map[string]any{"title": title},
		Err:     err,
	}
}

// NewAuthentication reports missing or rejected credentials.
func NewAuthentication(op string, err error) *Error {
	return &Error{Kind: KindAuthentication, Op: op, Err: err}
}

// NewInvalidRequest creates an error for malformed caller input.
func NewInvalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

// Is reports whether err, or anything it wraps, is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
