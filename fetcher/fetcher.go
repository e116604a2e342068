package fetcher

import "context"

// Row is one raw deal row as fetched from the portal: the HTML of the
// expanded table row, ready for field extraction.
type Row struct {
	HTML string
}

// Session fetches portal pages for one worker at a time. Page requests for a
// given neighborhood must be issued in ascending order; the session keeps the
// portal navigation state between calls.
//
// An empty, error-free result means the neighborhood has no further pages.
// Any error is transient and the same page may be requested again.
type Session interface {
	FetchPage(ctx context.Context, neighborhoodID string, page int) ([]Row, error)
	Close() error
}

// Pool hands out page-fetching sessions, bounded to a fixed size. A session
// is held by exactly one worker from Acquire until Close.
type Pool interface {
	Acquire(ctx context.Context) (Session, error)
}
