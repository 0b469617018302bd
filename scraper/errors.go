package scraper

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout is wrapped by every WaitError.
	ErrTimeout = errors.New("wait timed out")

	// ErrNoSuchElement reports an element or option that does not exist.
	ErrNoSuchElement = errors.New("no such element")

	// ErrStale reports an element handle whose node left the document.
	ErrStale = errors.New("stale element")

	// ErrFrameUnavailable reports an iframe whose document cannot be
	// reached (not loaded yet, or cross-origin).
	ErrFrameUnavailable = errors.New("frame document unavailable")

	// ErrClickIntercepted reports a native click whose target point is
	// covered by another element.
	ErrClickIntercepted = errors.New("click intercepted")
)

// WaitError is returned when an explicit wait runs out of time.
type WaitError struct {
	Locator   Locator
	Condition string
	Timeout   time.Duration
	// Last is the most recent transient error seen while polling, if any.
	Last error
}

func (e *WaitError) Error() string {
	msg := fmt.Sprintf("waiting %s for %s to be %s: %v", e.Timeout, e.Locator, e.Condition, ErrTimeout)
	if e.Last != nil {
		msg += " (last error: " + e.Last.Error() + ")"
	}
	return msg
}

func (e *WaitError) Unwrap() error { return ErrTimeout }

// StepError annotates a failure with the page-script step it happened in.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

func step(name string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: name, Err: err}
}

// staleMarkers are CDP error texts meaning the handle or the execution
// context it lived in has gone away.
var staleMarkers = []string{
	"Could not find object with given id",
	"Cannot find context with specified id",
	"Execution context was destroyed",
	"No node with given id found",
	"Node is detached from document",
	"Inspected target navigated or closed",
}

// IsStale reports whether err means an element handle is no longer usable.
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStale) {
		return true
	}
	msg := err.Error()
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
