package itsm

import "fmt"

// AuthError indicates the provider rejected our credentials or a session
// could not be established after retries.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("itsm auth failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("itsm auth failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UnknownFieldError indicates the provider schema does not expose an expected
// field. This signals a provider version mismatch and is never retried.
type UnknownFieldError struct {
	Logical string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("itsm schema does not expose field %q", e.Logical)
}

// QueryError indicates a single provider search call failed after the retry
// policy was exhausted.
type QueryError struct {
	Itemtype   string
	StatusCode int
	Err        error
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("itsm query on %s failed with status %d: %v", e.Itemtype, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("itsm query on %s failed: %v", e.Itemtype, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
