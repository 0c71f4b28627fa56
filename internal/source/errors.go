package source

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown sources, missing or unreadable
// descriptors, and files absent from the local copy.
var ErrNotFound = errors.New("not found")

// ParseError reports a descriptor or metadata file that could not be decoded.
// Raw holds the offending content.
type ParseError struct {
	Source string
	File   string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("source %s: parse %s: %v", e.Source, e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UpstreamError reports a failed request to a web source. The resolver
// recovers from it by reading the local copy.
type UpstreamError struct {
	URL    string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d", e.URL, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
