package runner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryosukesatoh/arxiv-digest/internal/fetcher"
	"github.com/ryosukesatoh/arxiv-digest/internal/filter"
	"github.com/ryosukesatoh/arxiv-digest/internal/publisher"
	"github.com/ryosukesatoh/arxiv-digest/internal/report"
	"github.com/ryosukesatoh/arxiv-digest/internal/store"
)

// Runner orchestrates the fetch -> filter -> render -> store -> publish pipeline.
type Runner struct {
	name       string
	categories []string
	matches    filter.MatchSet
	fetcher    fetcher.Fetcher
	sinks      []store.Sink
	publishers []publisher.Publisher
}

func New(name string, categories []string, matches filter.MatchSet, f fetcher.Fetcher, sinks []store.Sink, pubs []publisher.Publisher) *Runner {
	return &Runner{
		name:       name,
		categories: categories,
		matches:    matches,
		fetcher:    f,
		sinks:      sinks,
		publishers: pubs,
	}
}

// Run executes the full pipeline once for the window [from, until]. An empty
// corpus stops the run with report.ErrNoSubmissions before anything is stored.
func (r *Runner) Run(ctx context.Context, from, until time.Time) error {
	log.Printf("Starting pipeline %s for categories %q", report.Timespan(from, until), strings.Join(r.categories, ", "))

	// Step 1: Fetch records
	corpus, err := r.fetcher.Fetch(ctx, from, until, r.categories)
	if err != nil {
		return fmt.Errorf("runner: fetch failed: %w", err)
	}
	log.Printf("Fetched %d records", len(corpus))

	// Step 2: Filter
	var result filter.Result
	if r.matches.Empty() {
		log.Println("Submissions were not filtered, provide keywords or authors")
		result = filter.All(corpus)
	} else {
		result = filter.Apply(corpus, r.matches)
		log.Printf("Selected %d of %d records", len(result.Selected), len(corpus))
	}

	// Step 3: Render
	rep, err := report.Render(r.name, from, until, len(corpus), result.Selected)
	if err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	// Step 4: Store
	batch := store.Batch{
		RunID:      uuid.NewString(),
		From:       from,
		Until:      until,
		Corpus:     corpus,
		Membership: result.Membership,
	}
	for _, sink := range r.sinks {
		if err := sink.Save(ctx, batch); err != nil {
			return fmt.Errorf("runner: save via %T failed: %w", sink, err)
		}
	}

	// Step 5: Publish - Continue with other publishers even if one fails
	var publishErrors []error
	for _, pub := range r.publishers {
		log.Printf("Publishing via %T...", pub)
		if err := pub.Publish(ctx, rep); err != nil {
			publishError := fmt.Errorf("publish via %T failed: %w", pub, err)
			publishErrors = append(publishErrors, publishError)
			log.Printf("WARNING: %v", publishError)
		} else {
			log.Printf("Successfully published via %T", pub)
		}
	}

	if len(publishErrors) == len(r.publishers) && len(r.publishers) > 0 {
		return fmt.Errorf("runner: all publishers failed: %v", publishErrors)
	}

	if len(publishErrors) > 0 {
		log.Printf("Pipeline completed with %d publisher failures out of %d publishers", len(publishErrors), len(r.publishers))
	} else {
		log.Println("Pipeline completed successfully")
	}

	return nil
}
