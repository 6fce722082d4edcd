package domain

import "errors"

// Pipeline error taxonomy. Only ErrInvalidInput and ErrNavigation halt a
// scrape attempt; everything else degrades to a partial result.
var (
	// ErrInvalidInput marks a URL that failed validation. The scrape
	// never starts.
	ErrInvalidInput = errors.New("invalid listing URL")

	// ErrNavigation marks a page that failed to load within the timeout
	// or returned a non-success status. Fatal for the attempt.
	ErrNavigation = errors.New("navigation failed")

	// ErrReplay marks a failed manual replay of the availability API.
	// Triggers the DOM fallback, never surfaces as a failure.
	ErrReplay = errors.New("availability replay failed")

	// ErrPersistence marks a rejected write. Prior data stays intact.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound marks a listing lookup miss.
	ErrNotFound = errors.New("listing not found")
)
