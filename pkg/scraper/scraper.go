// Package scraper wires the page client, batch orchestrator and reducer into
// a single run over the listing.
package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/client"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/logging"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/normalize"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/pagination"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/ranking"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/ratelimit"
)

// Mode selects the scheduling strategy.
type Mode string

const (
	// ModeSequential fetches one page at a time and aborts on the first failure.
	ModeSequential Mode = "sequential"

	// ModeFast fetches in concurrent batches with the configured size and pause.
	ModeFast Mode = "fast"

	// ModeSafe fetches in concurrent batches of 5 with a 500ms pause.
	ModeSafe Mode = "safe"
)

// ParseMode converts a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSequential, ModeFast, ModeSafe:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want sequential, fast or safe)", s)
	}
}

// Options configures one run.
type Options struct {
	Mode   Mode
	Pages  int
	Batch  pagination.Config
	Client client.Config

	// Fetcher overrides the HTTP client (for testing).
	Fetcher pagination.PageFetcher
	// Pacer overrides the inter-batch pause (for testing).
	Pacer ratelimit.Pacer
}

// DefaultOptions returns fast mode over 10 pages.
func DefaultOptions() Options {
	return Options{
		Mode:   ModeFast,
		Pages:  10,
		Batch:  pagination.DefaultConfig(),
		Client: client.DefaultConfig(),
	}
}

// Effective returns the batch configuration actually used for the mode.
// Safe mode ignores user-supplied batch settings.
func (o Options) Effective() pagination.Config {
	if o.Mode == ModeSafe {
		return pagination.SafeConfig()
	}
	return o.Batch
}

// Result is the ranked output of one run.
type Result struct {
	Rows      []normalize.Row
	Mode      Mode
	Stats     Stats
	ScrapedAt time.Time
	Duration  time.Duration
}

// Stats summarizes the pages behind a Result.
type Stats struct {
	PagesRequested int
	PagesSucceeded int
	PagesFailed    int
	Batches        int
	Pauses         int
	// RowsAccumulated counts rows before deduplication
	RowsAccumulated int
}

// Throughput returns ranked rows per second of wall time.
func (r *Result) Throughput() float64 {
	secs := r.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(len(r.Rows)) / secs
}

// Run fetches pages 1..opts.Pages in the selected mode and returns the
// deduplicated rank-ordered rows. In sequential mode a failing page aborts
// the run and its error is returned together with the partial, reduced rows.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := logging.NewLogger("scraper")

	if opts.Pages < 0 {
		return nil, fmt.Errorf("pages must be >= 0 (got %d)", opts.Pages)
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}

	batch := opts.Effective()
	if batch.BatchSize < 1 {
		batch.BatchSize = 1
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		clientCfg := opts.Client
		if clientCfg.MaxConnsPerHost <= 0 {
			// One pooled connection per in-flight page of a batch.
			clientCfg.MaxConnsPerHost = batch.BatchSize
		}
		c, err := client.New(clientCfg)
		if err != nil {
			return nil, fmt.Errorf("create client: %w", err)
		}
		fetcher = c
	}

	bf := pagination.NewBatchFetcher(fetcher, opts.Pacer, batch)

	logger.Info().
		Str("mode", string(opts.Mode)).
		Int("pages", opts.Pages).
		Int("batch_size", bf.Config().BatchSize).
		Dur("pause", bf.Config().Pause).
		Msg("Starting scrape")

	start := time.Now()
	var (
		res *pagination.Result
		err error
	)
	if opts.Mode == ModeSequential {
		res, err = bf.FetchSequential(ctx, opts.Pages)
	} else {
		res, err = bf.FetchBatched(ctx, opts.Pages)
	}

	out := &Result{
		Rows:      ranking.Reduce(res.Rows),
		Mode:      opts.Mode,
		ScrapedAt: res.ScrapedAt,
		Duration:  time.Since(start),
		Stats: Stats{
			PagesRequested:  res.PagesRequested,
			PagesSucceeded:  res.PagesSucceeded,
			PagesFailed:     len(res.Failures),
			Batches:         res.Batches,
			Pauses:          res.Pauses,
			RowsAccumulated: len(res.Rows),
		},
	}

	if err != nil {
		logger.Error().
			Err(err).
			Str("error_class", pagination.ErrorClass(err)).
			Int("rows", len(out.Rows)).
			Msg("Scrape aborted")
		return out, err
	}

	logEvent(logger, out).Msg("Scrape complete")
	return out, nil
}

func logEvent(logger zerolog.Logger, r *Result) *zerolog.Event {
	ev := logger.Info()
	if r.Stats.PagesFailed > 0 {
		ev = logger.Warn()
	}
	return ev.
		Int("rows", len(r.Rows)).
		Int("rows_accumulated", r.Stats.RowsAccumulated).
		Int("pages", r.Stats.PagesSucceeded).
		Int("failed", r.Stats.PagesFailed).
		Dur("duration", r.Duration)
}
