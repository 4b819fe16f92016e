package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ryosukesatoh/arxiv-digest/internal/config"
	"github.com/ryosukesatoh/arxiv-digest/internal/fetcher"
	"github.com/ryosukesatoh/arxiv-digest/internal/filter"
	"github.com/ryosukesatoh/arxiv-digest/internal/publisher"
	"github.com/ryosukesatoh/arxiv-digest/internal/report"
	"github.com/ryosukesatoh/arxiv-digest/internal/retry"
	"github.com/ryosukesatoh/arxiv-digest/internal/runner"
	"github.com/ryosukesatoh/arxiv-digest/internal/store"
)

type runOptions struct {
	configPath string
	from       string
	until      string
	once       bool
}

// app is a fully wired pipeline plus the resources it holds open.
type app struct {
	runner  *runner.Runner
	web     *publisher.WebPublisher
	closers []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Printf("WARNING: close failed: %v", err)
		}
	}
}

func runDigest(ctx context.Context, opts *runOptions, stdout io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	from, until, err := window(opts.from, opts.until, time.Now())
	if err != nil {
		return err
	}

	prompt := publisher.TerminalPrompt(cfg.Email)
	scheduled := !opts.once && cfg.Schedule != ""
	if scheduled {
		// Ticks run unattended, so ask for the password before the first one.
		if err := resolvePassword(cfg, prompt); err != nil {
			return err
		}
		prompt = nil
	}

	a, err := buildApp(cfg, stdout, prompt)
	if err != nil {
		return err
	}
	defer a.Close()

	if !scheduled {
		if a.web == nil {
			return a.runner.Run(ctx, from, until)
		}
		return serveOnce(ctx, a, from, until)
	}
	return schedule(ctx, cfg.Schedule, a)
}

// serveOnce publishes a single digest to the web page and keeps serving it
// until interrupted.
func serveOnce(ctx context.Context, a *app, from, until time.Time) error {
	if err := a.web.Start(); err != nil {
		return err
	}
	defer shutdownWeb(a.web)

	if err := a.runner.Run(ctx, from, until); err != nil {
		return err
	}
	waitForSignal(ctx)
	return nil
}

// resolvePassword fills in the mail password when e-mail delivery has none
// stored.
func resolvePassword(cfg *config.Config, prompt publisher.PasswordFunc) error {
	if cfg.Delivery() != config.PublisherEmail || cfg.Password != "" {
		return nil
	}
	pw, err := prompt()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if pw == "" {
		return errors.New("an e-mail password is required for scheduled delivery")
	}
	cfg.Password = pw
	return nil
}

// buildApp wires fetcher, match set, sinks and the delivery publisher from cfg.
func buildApp(cfg *config.Config, stdout io.Writer, prompt publisher.PasswordFunc) (*app, error) {
	matches, err := filter.LoadMatchSet(cfg.KeywordsFile, cfg.AuthorsFile)
	if err != nil {
		return nil, err
	}

	retryCfg := retry.Config{}
	if cfg.Fetcher.MaxRetries > 0 {
		retryCfg = retry.DefaultConfig()
		retryCfg.MaxRetries = cfg.Fetcher.MaxRetries
	}
	f := fetcher.NewOAIFetcher(fetcher.Options{
		BaseURL:    cfg.Fetcher.BaseURL,
		Timeout:    cfg.Fetcher.Timeout,
		Retry:      retryCfg,
		SkipFailed: cfg.Fetcher.SkipFailedCategories,
	})

	a := &app{}

	var sinks []store.Sink
	if cfg.Store.RecordsCSV != "" {
		sinks = append(sinks, store.NewCSVSink(cfg.Store.RecordsCSV, cfg.Store.LabelsCSV))
	}
	if cfg.Store.SQLitePath != "" {
		db, err := store.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, db)
		a.closers = append(a.closers, db)
	}

	var pub publisher.Publisher
	switch cfg.Delivery() {
	case config.PublisherStdout:
		pub = publisher.NewWriterPublisher(stdout)
	case config.PublisherEmail:
		pub = publisher.NewEmailPublisher(
			cfg.Publisher.Email.SMTPHost,
			cfg.Publisher.Email.SMTPPort,
			cfg.Email,
			cfg.Password,
			prompt,
		)
	case config.PublisherWeb:
		a.web = publisher.NewWebPublisher(cfg.Publisher.Web.Addr)
		pub = a.web
	default:
		a.Close()
		return nil, fmt.Errorf("unknown publisher type: %s", cfg.Delivery())
	}

	a.runner = runner.New(cfg.Name, cfg.Categories, matches, f, sinks, []publisher.Publisher{pub})
	return a, nil
}

// window parses the harvest dates. Both default to today; until defaults to
// from when only from is given.
func window(fromFlag, untilFlag string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	from := today
	if fromFlag != "" {
		t, err := time.ParseInLocation(time.DateOnly, fromFlag, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: %w", fromFlag, err)
		}
		from = t
	}

	until := from
	if untilFlag != "" {
		t, err := time.ParseInLocation(time.DateOnly, untilFlag, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --until %q: %w", untilFlag, err)
		}
		until = t
	}

	if until.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--until %s is before --from %s", until.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return from, until, nil
}

// schedule runs the digest for the current day on every cron tick until
// SIGINT or SIGTERM.
func schedule(ctx context.Context, expr string, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.web != nil {
		if err := a.web.Start(); err != nil {
			return err
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(expr, func() {
		log.Println("Cron triggered, running digest...")
		from, until, _ := window("", "", time.Now())
		if err := a.runner.Run(ctx, from, until); err != nil {
			if errors.Is(err, report.ErrNoSubmissions) {
				log.Printf("WARNING: no arXiv submissions %s", report.Timespan(from, until))
				return
			}
			log.Printf("Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to set up cron schedule %q: %w", expr, err)
	}
	c.Start()
	log.Printf("Scheduled digest with cron expression: %s", expr)

	waitForSignal(ctx)

	cancel()
	<-c.Stop().Done()
	if a.web != nil {
		shutdownWeb(a.web)
	}

	log.Println("Shutdown complete")
	return nil
}

func waitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-ctx.Done():
	}
}

func shutdownWeb(web *publisher.WebPublisher) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := web.Shutdown(ctx); err != nil {
		log.Printf("Web server shutdown error: %v", err)
	}
}
