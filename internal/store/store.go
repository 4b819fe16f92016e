// Package store persists each run's corpus and filter labels.
package store

import (
	"context"
	"time"

	"github.com/ryosukesatoh/arxiv-digest/internal/fetcher"
)

// Batch is one run's output: the unfiltered corpus and the membership label
// of each record.
type Batch struct {
	RunID      string
	From       time.Time
	Until      time.Time
	Corpus     []fetcher.Record
	Membership []bool
}

// Selected counts the records labelled true.
func (b Batch) Selected() int {
	n := 0
	for _, m := range b.Membership {
		if m {
			n++
		}
	}
	return n
}

// Sink receives a batch at the end of the filter step.
type Sink interface {
	Save(ctx context.Context, batch Batch) error
}
