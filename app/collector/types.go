package collector

import (
	"context"
	"errors"
	"fmt"
)

// Listing is one raw ad pulled from a search results page. Listings are
// transient: the dedup store persists its own record shape.
type Listing struct {
	DetailURL string
	Title     string
	Price     string
}

// Fetcher yields the raw listings for one search URL. Implementations
// must honor ctx cancellation and classify failures via *Error.
type Fetcher interface {
	FetchListings(ctx context.Context, searchURL string, currency string) ([]Listing, error)
}

// Error is a collection failure for a single search URL. Transient
// failures (timeouts, navigation errors) are worth one retry within the
// same cycle; permanent ones (soft block) are not.
type Error struct {
	Op        string
	URL       string
	Err       error
	Transient bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a collection error worth retrying
// within the current cycle.
func IsTransient(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Transient
}
