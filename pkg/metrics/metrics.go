// Package metrics documents the scraper's Prometheus metrics and pushes them
// to a Pushgateway at the end of a one-shot run.
//
// All metrics are defined in their respective packages (client, pagination,
// ratelimit) via promauto to avoid circular dependencies.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Gatherer is the source Push collects from. The promauto metrics of the
// other packages register with the default registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// DefaultJob is the Pushgateway job name used by the CLI.
const DefaultJob = "cmc_scraper"

// Push sends the current value of every registered metric to the
// Pushgateway at url, replacing the previous group for job. The scraper
// exits after one run, so metrics are pushed rather than scraped.
func Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if url == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if job == "" {
		job = DefaultJob
	}

	pusher := push.New(url, job).Gatherer(Gatherer)
	for k, v := range grouping {
		pusher = pusher.Grouping(k, v)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - scraper_page_requests_total{status} (Counter): Page requests by HTTP status or failure class
//   - scraper_page_request_duration_seconds (Histogram): Page request duration
//   - scraper_page_errors_total{class} (Counter): Fetch errors by class (timeout, connection, status)
//
// Batch Metrics (pkg/pagination):
//   - scraper_batches_total (Counter): Batches executed
//   - scraper_pages_total{outcome} (Counter): Pages processed (success, failure)
//   - scraper_batch_duration_seconds (Histogram): Batch wall time from launch to barrier
//
// Pacing Metrics (pkg/ratelimit):
//   - scraper_batch_pauses_total (Counter): Inter-batch pauses
//   - scraper_batch_pause_seconds_total (Counter): Time spent pausing
//
// Example Prometheus Queries:
//
//   # Page failure ratio of the last run
//   scraper_pages_total{outcome="failure"} / ignoring(outcome) sum(scraper_pages_total)
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(scraper_page_request_duration_seconds_bucket[1h]))
//
//   # Status failures (blocking, rate limiting upstream)
//   scraper_page_errors_total{class="status"}
