package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindTimeout         ErrorKind = "Timeout"
	KindNetworkFailure  ErrorKind = "NetworkFailure"
	KindBlocked         ErrorKind = "Blocked"
	KindNavigation      ErrorKind = "Navigation"
	KindMalformedRecord ErrorKind = "MalformedRecord"
	KindWriteFailure    ErrorKind = "WriteFailure"
)

// RenderError is the only error a renderer returns besides context
// cancellation.
type RenderError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func NewRenderError(kind ErrorKind, url string, err error) *RenderError {
	return &RenderError{Kind: kind, URL: url, Err: err}
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("render %s: %s", e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RenderError) Unwrap() error { return e.Err }

// RenderErrorKind reports the kind of the RenderError wrapped in err, if any.
func RenderErrorKind(err error) (ErrorKind, bool) {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

type ExtractionError struct {
	Kind   ErrorKind
	Site   string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s record from %s: %s", e.Kind, e.Site, e.Reason)
}

func Malformed(site, reason string) *ExtractionError {
	return &ExtractionError{Kind: KindMalformedRecord, Site: site, Reason: reason}
}

type OutputError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Kind, e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

func WriteFailure(path string, err error) *OutputError {
	return &OutputError{Kind: KindWriteFailure, Path: path, Err: err}
}
