package source

import "fmt"

// InvalidLinkError means the link carries no recognizable identifier.
type InvalidLinkError struct {
	Link   string
	Reason string
}

func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("invalid link %q: %s", e.Link, e.Reason)
}

// FetchError is returned once every attempt has failed. Cause is the error
// of the last attempt.
type FetchError struct {
	Link     string
	Attempts int
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempt(s) failed: %v", e.Link, e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }
