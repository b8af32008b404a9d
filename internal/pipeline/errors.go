package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal pipeline failure.
type Kind string

const (
	KindUnsupportedFormat     Kind = "UnsupportedFormat"
	KindConversionUnavailable Kind = "ConversionUnavailable"
	KindConversionFailure     Kind = "ConversionFailure"
	KindRenderFailure         Kind = "RenderFailure"
	KindDetectionFailure      Kind = "DetectionFailure"
	KindExtractionFailure     Kind = "ExtractionFailure"
)

// Sentinels for errors.Is checks against an *Error.
var (
	ErrUnsupportedFormat     = &Error{Kind: KindUnsupportedFormat}
	ErrConversionUnavailable = &Error{Kind: KindConversionUnavailable}
	ErrConversionFailure     = &Error{Kind: KindConversionFailure}
	ErrRenderFailure         = &Error{Kind: KindRenderFailure}
	ErrDetectionFailure      = &Error{Kind: KindDetectionFailure}
	ErrExtractionFailure     = &Error{Kind: KindExtractionFailure}
)

// Error is returned for every fatal pipeline failure. None of them are retried.
type Error struct {
	Kind   Kind
	Page   int // 1-based; 0 when the failure is not tied to a page
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Page > 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels above work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError builds a pipeline error. Capability implementations use it to
// report a specific Kind.
func NewError(kind Kind, page int, detail string, err error) *Error {
	return &Error{Kind: kind, Page: page, Detail: detail, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not a pipeline error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
