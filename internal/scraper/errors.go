package scraper

import "fmt"

// ParseError means no usable field came out of any extraction
// strategy. A partial snapshot with some fields absent is a valid
// outcome, not a ParseError.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure for %s: %s", e.URL, e.Reason)
}

// TransportError wraps a failure in the fetch layer, from refused
// connections to unexpected statuses. Sweep and refresh callers treat
// it like a ParseError for the affected item.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
