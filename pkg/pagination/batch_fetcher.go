// Package pagination provides batched parallel fetching of listing pages
package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/client"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/extract"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/normalize"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/ratelimit"
)

var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_batches_total",
		Help: "Total number of page batches executed",
	})

	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_pages_total",
		Help: "Total pages processed by outcome",
	}, []string{"outcome"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_batch_duration_seconds",
		Help:    "Wall time of one batch from launch to barrier",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
	})
)

// Config holds batch fetcher configuration
type Config struct {
	// BatchSize is the number of pages fetched concurrently per batch
	BatchSize int
	// Pause between consecutive batches (0 disables pausing)
	Pause time.Duration
}

// DefaultConfig returns the fast-mode configuration
func DefaultConfig() Config {
	return Config{
		BatchSize: 10,
		Pause:     300 * time.Millisecond,
	}
}

// SafeConfig returns the conservative configuration used by safe mode
func SafeConfig() Config {
	return Config{
		BatchSize: 5,
		Pause:     500 * time.Millisecond,
	}
}

// PageFetcher is the interface the listing client must implement for single-page fetching
type PageFetcher interface {
	// FetchPage fetches a single page and returns the raw document
	FetchPage(ctx context.Context, page int) (string, error)
}

// PageError tags a pipeline failure with its page number
type PageError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}

// PageResult represents the outcome of fetching one page
type PageResult struct {
	PageNumber int
	Rows       []normalize.Row
	Error      error
}

// Result is the accumulated output of one invocation
type Result struct {
	// Rows in accumulation order (batch order, then page order within a batch)
	Rows []normalize.Row
	// Failures holds the dropped pages
	Failures []PageResult

	PagesRequested int
	PagesSucceeded int
	Batches        int
	Pauses         int
	ScrapedAt      time.Time
	Duration       time.Duration
}

// BatchFetcher runs the fetch, extract and normalize pipeline over a page range
type BatchFetcher struct {
	fetcher PageFetcher
	pacer   ratelimit.Pacer
	config  Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, pacer ratelimit.Pacer, config Config) *BatchFetcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.Pause < 0 {
		config.Pause = 0
	}

	logger := log.With().Str("component", "batch-fetcher").Logger()
	if pacer == nil {
		pacer = ratelimit.NewSleepPacer(logger)
	}

	return &BatchFetcher{
		fetcher: fetcher,
		pacer:   pacer,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Config returns the effective configuration
func (bf *BatchFetcher) Config() Config {
	return bf.config
}

// ProcessPage fetches, extracts and normalizes a single page
func (bf *BatchFetcher) ProcessPage(ctx context.Context, page int) ([]normalize.Row, error) {
	html, err := bf.fetcher.FetchPage(ctx, page)
	if err != nil {
		return nil, &PageError{Page: page, Err: err}
	}

	records, err := extract.Records(html)
	if err != nil {
		return nil, &PageError{Page: page, Err: err}
	}

	return normalize.Records(records), nil
}

// FetchSequential processes pages 1..pages one at a time. The first failure
// aborts the run; the returned Result holds the rows accumulated before it.
func (bf *BatchFetcher) FetchSequential(ctx context.Context, pages int) (*Result, error) {
	res := bf.newResult(pages)
	start := bf.now()

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		rows, err := bf.ProcessPage(ctx, page)
		if err != nil {
			pagesTotal.WithLabelValues("failure").Inc()
			bf.logFailure(page, err)
			res.Failures = append(res.Failures, PageResult{PageNumber: page, Error: err})
			res.Duration = time.Since(start)
			return res, fmt.Errorf("sequential fetch aborted: %w", err)
		}

		pagesTotal.WithLabelValues("success").Inc()
		res.append(rows)
		res.PagesSucceeded++
	}

	res.Duration = time.Since(start)
	bf.logger.Info().
		Int("pages", res.PagesSucceeded).
		Int("rows", len(res.Rows)).
		Dur("duration", res.Duration).
		Msg("Sequential fetch complete")

	return res, nil
}

// FetchBatched processes pages 1..pages in consecutive batches of BatchSize.
// All pages of a batch run concurrently and the batch is joined before its
// results are merged. Failed pages are dropped without aborting the run.
// A cancelled context stops scheduling further batches.
func (bf *BatchFetcher) FetchBatched(ctx context.Context, pages int) (*Result, error) {
	res := bf.newResult(pages)
	start := bf.now()

	bf.logger.Info().
		Int("pages", pages).
		Int("batch_size", bf.config.BatchSize).
		Dur("pause", bf.config.Pause).
		Msg("Starting batched page fetch")

	batches := Partition(pages, bf.config.BatchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		for _, outcome := range bf.runBatch(ctx, batch) {
			if outcome.Error != nil {
				pagesTotal.WithLabelValues("failure").Inc()
				bf.logFailure(outcome.PageNumber, outcome.Error)
				res.Failures = append(res.Failures, outcome)
				continue
			}
			pagesTotal.WithLabelValues("success").Inc()
			res.append(outcome.Rows)
			res.PagesSucceeded++
		}
		res.Batches++

		if i < len(batches)-1 && bf.config.Pause > 0 {
			res.Pauses++
			if err := bf.pacer.Pause(ctx, bf.config.Pause); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
		}
	}

	res.Duration = time.Since(start)
	bf.logger.Info().
		Int("pages", res.PagesSucceeded).
		Int("failed", len(res.Failures)).
		Int("batches", res.Batches).
		Int("rows", len(res.Rows)).
		Dur("duration", res.Duration).
		Msg("Batched fetch complete")

	return res, nil
}

// runBatch launches one pipeline per page and waits for all of them. Each
// goroutine writes only its own slot, so no locking is needed.
func (bf *BatchFetcher) runBatch(ctx context.Context, batch []int) []PageResult {
	batchStart := time.Now()
	outcomes := make([]PageResult, len(batch))

	var g errgroup.Group
	for i, page := range batch {
		g.Go(func() error {
			rows, err := bf.ProcessPage(ctx, page)
			outcomes[i] = PageResult{PageNumber: page, Rows: rows, Error: err}
			return nil
		})
	}
	_ = g.Wait()

	batchesTotal.Inc()
	batchDuration.Observe(time.Since(batchStart).Seconds())

	bf.logger.Debug().
		Ints("batch", batch).
		Dur("duration", time.Since(batchStart)).
		Msg("Batch complete")

	return outcomes
}

func (bf *BatchFetcher) newResult(pages int) *Result {
	if pages < 0 {
		pages = 0
	}
	return &Result{
		PagesRequested: pages,
		ScrapedAt:      bf.now().UTC(),
	}
}

func (bf *BatchFetcher) logFailure(page int, err error) {
	bf.logger.Warn().
		Err(err).
		Int("page", page).
		Str("error_class", ErrorClass(err)).
		Msg("Page dropped")
}

// append stamps rows with the invocation timestamp and accumulates them.
func (r *Result) append(rows []normalize.Row) {
	for _, row := range rows {
		row.ScrapedAt = r.ScrapedAt
		r.Rows = append(r.Rows, row)
	}
}

// Partition splits pages 1..n into consecutive groups of size. The last group
// may be shorter. n <= 0 yields no groups.
func Partition(n, size int) [][]int {
	if n <= 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	batches := make([][]int, 0, (n+size-1)/size)
	for start := 1; start <= n; start += size {
		end := min(start+size-1, n)
		batch := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			batch = append(batch, p)
		}
		batches = append(batches, batch)
	}
	return batches
}

// ErrorClass names the failure class of a pipeline error for logs and metrics.
func ErrorClass(err error) string {
	if class, ok := client.ClassOf(err); ok {
		return string(class)
	}
	var extErr *extract.ExtractionError
	if errors.As(err, &extErr) {
		return "extraction"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "unknown"
}
