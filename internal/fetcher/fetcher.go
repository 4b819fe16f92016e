package fetcher

import (
	"context"
	"fmt"
	"time"
)

// Record is one submission's metadata as harvested. Text fields are
// lowercased with newlines folded into spaces.
type Record struct {
	Title    string
	Abstract string
	// SearchableText is Title + ". " + Abstract and is only used for matching.
	SearchableText string
	URL            string
	Authors        []string
	Created        string
	Category       string
}

// Fetcher harvests records for a date range, one request per category.
// Records are returned in category order, then in document order.
type Fetcher interface {
	Fetch(ctx context.Context, from, until time.Time, categories []string) ([]Record, error)
}

// FetchError is returned when harvesting a single category fails.
type FetchError struct {
	Category string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Category, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
