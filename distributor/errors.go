package distributor

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by the template adapter until its placeholders
// are replaced with a real site binding.
var ErrNotConfigured = errors.New("adapter: not configured")

// AuthError indicates bad credentials, missing login fields, or an
// unrecognized post-login page. Fatal, never retried.
type AuthError struct {
	Err error
}

func (e AuthError) Error() string {
	return fmt.Errorf("authentication: %w", e.Err).Error()
}

func (e AuthError) Unwrap() error {
	return e.Err
}

// NavError indicates a transient navigation failure (timeout, DNS,
// connection reset). Retryable up to the configured bound.
type NavError struct {
	Err error
}

func (e NavError) Error() string {
	return fmt.Errorf("navigation: %w", e.Err).Error()
}

func (e NavError) Unwrap() error {
	return e.Err
}

// SelectorError indicates the target site's markup no longer matches the
// adapter's expectations. Fatal; the adapter needs maintenance.
type SelectorError struct {
	Selector string
	Err      error
}

func (e SelectorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("selector %q: %v", e.Selector, e.Err)
	}
	return fmt.Sprintf("selector %q: not found", e.Selector)
}

func (e SelectorError) Unwrap() error {
	return e.Err
}

// DataError flags unparseable scraped text. Never fatal: the normalizer
// degrades the value and the run continues.
type DataError struct {
	Field string
	Err   error
}

func (e DataError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Field, e.Err)
}

func (e DataError) Unwrap() error {
	return e.Err
}

// Fatal reports whether an adapter error must not be retried.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	var auth AuthError
	if errors.As(err, &auth) {
		return true
	}
	var sel SelectorError
	if errors.As(err, &sel) {
		return true
	}
	return errors.Is(err, ErrNotConfigured)
}

// ClassLabel returns the metrics label for an error.
func ClassLabel(err error) string {
	if err == nil {
		return "none"
	}
	var auth AuthError
	if errors.As(err, &auth) {
		return "authentication"
	}
	var sel SelectorError
	if errors.As(err, &sel) {
		return "selector"
	}
	var nav NavError
	if errors.As(err, &nav) {
		return "navigation"
	}
	var data DataError
	if errors.As(err, &data) {
		return "malformed_data"
	}
	return "other"
}
