// Package ratelimit implements the self-imposed pacing between request
// batches sent to the listing site.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for pacing.
var (
	pausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_batch_pauses_total",
		Help: "Total number of inter-batch pauses",
	})

	pauseSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_batch_pause_seconds_total",
		Help: "Total time spent pausing between batches",
	})
)

// Pacer suspends the caller between batches.
type Pacer interface {
	// Pause blocks for d or until ctx is done, whichever comes first.
	Pause(ctx context.Context, d time.Duration) error
}

// SleepPacer pauses using a timer.
type SleepPacer struct {
	logger zerolog.Logger
}

// NewSleepPacer creates a timer-based pacer.
func NewSleepPacer(logger zerolog.Logger) *SleepPacer {
	return &SleepPacer{logger: logger}
}

// Pause implements Pacer.
func (p *SleepPacer) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	p.logger.Debug().
		Dur("pause", d).
		Msg("Pausing before next batch")

	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()

	pausesTotal.Inc()
	defer func() {
		pauseSeconds.Add(time.Since(start).Seconds())
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn().
			Dur("pause", d).
			Dur("elapsed", time.Since(start)).
			Msg("Context cancelled during batch pause")
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PacerFunc adapts a function to the Pacer interface.
type PacerFunc func(ctx context.Context, d time.Duration) error

// Pause implements Pacer.
func (f PacerFunc) Pause(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}
