package publisher

import (
	"context"

	"github.com/ryosukesatoh/arxiv-digest/internal/report"
)

// Publisher delivers a rendered report to some output destination.
type Publisher interface {
	Publish(ctx context.Context, rep *report.Report) error
}
