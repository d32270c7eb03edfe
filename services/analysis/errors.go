package analysis

import (
	"errors"

	"mapsentiment-backend/lib/browser"
)

// The error taxonomy callers branch on. Timeout and store failures mean
// "retry later", authentication means "operator action", resolution and
// limit mean "bad input". All of them are matched with errors.Is.
var (
	ErrInvalidLimit = errors.New("limit must be a positive integer")
	ErrResolution   = errors.New("location url could not be resolved")
	ErrScrape       = errors.New("review scraping failed")
	ErrTimeout      = errors.New("operation exceeded its time bound")
	// ErrStoreUnavailable only escapes Analyze when the store is
	// configured as mandatory, otherwise outages degrade to cache misses
	ErrStoreUnavailable = errors.New("cache store unavailable")

	// regenerating session state is the manual capture flow's job, the
	// pipeline only reports the condition
	ErrAuthenticationRequired = browser.ErrAuthenticationRequired
)
