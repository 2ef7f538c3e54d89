package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/config"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/export"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/logging"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/metrics"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/scraper"
)

const csvAuto = "auto"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one scrape and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logCfg := cfg.Logging()
	logCfg.Output = stderr
	logging.Setup(logCfg)
	logger := logging.NewLogger("cli")

	opts, err := cfg.ScraperOptions()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 2
	}

	res, runErr := scraper.Run(ctx, opts)
	if res == nil {
		logger.Error().Err(runErr).Msg("Scrape failed")
		return 1
	}

	if err := export.WriteSummary(stdout, len(res.Rows), res.Duration, string(res.Mode)); err != nil {
		logger.Error().Err(err).Msg("Write summary failed")
		return 1
	}
	if err := export.WriteTable(stdout, res.Rows, cfg.Output.Top); err != nil {
		logger.Error().Err(err).Msg("Write table failed")
		return 1
	}

	// Sinks run even after a sequential abort so partial rows are not lost.
	exportErr := runSinks(ctx, cfg, res, stdout, logger)

	if runErr != nil {
		logger.Error().Err(runErr).Msg("Scrape aborted")
		return 1
	}
	if exportErr != nil {
		return 1
	}
	return 0
}

// parseConfig layers flags over the file, .env and environment settings.
func parseConfig(args []string, stderr io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("cmc-scraper", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to a YAML config file")
	pages := fs.Int("pages", 0, "Number of listing pages to fetch (default 10)")
	mode := fs.String("mode", "", "Scheduling mode: sequential, fast or safe (default fast)")
	batchSize := fs.Int("batch-size", 0, "Pages per concurrent batch (default 10, ignored in safe mode)")
	pauseMS := fs.Int("pause-ms", 0, "Pause between batches in milliseconds (default 300, ignored in safe mode)")
	timeout := fs.Duration("timeout", 0, "Per-request timeout (default 20s)")
	baseURL := fs.String("base-url", "", "Listing base URL")
	csvPath := fs.String("csv", "", `Write rows to a CSV file ("auto" for a timestamped name)`)
	csvAppend := fs.Bool("csv-append", false, "Append to the CSV file instead of replacing it")
	redisAddr := fs.String("redis-addr", "", "Publish the snapshot to Redis at this address")
	redisChannel := fs.String("redis-channel", "", "Redis pub/sub channel (default cmc:listing)")
	pushgateway := fs.String("pushgateway", "", "Push metrics to this Prometheus Pushgateway URL")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logPretty := fs.Bool("log-pretty", false, "Human-readable log output")
	top := fs.Int("top", 0, "Rows to print (0 prints all, default 10)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["pages"] {
		cfg.Pages = *pages
	}
	if set["mode"] {
		cfg.Mode = *mode
	}
	if set["batch-size"] {
		cfg.BatchSize = *batchSize
	}
	if set["pause-ms"] {
		cfg.PauseMS = *pauseMS
	}
	if set["timeout"] {
		cfg.Timeout = *timeout
	}
	if set["base-url"] {
		cfg.BaseURL = *baseURL
	}
	if set["csv"] {
		cfg.Output.CSV = *csvPath
	}
	if set["csv-append"] {
		cfg.Output.CSVAppend = *csvAppend
	}
	if set["redis-addr"] {
		cfg.Redis.Addr = *redisAddr
	}
	if set["redis-channel"] {
		cfg.Redis.Channel = *redisChannel
	}
	if set["pushgateway"] {
		cfg.Metrics.Pushgateway = *pushgateway
	}
	if set["log-level"] {
		cfg.Log.Level = *logLevel
	}
	if set["log-pretty"] {
		cfg.Log.Pretty = *logPretty
	}
	if set["top"] {
		cfg.Output.Top = *top
	}

	cfg.ApplyMode()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runSinks writes the optional CSV file, Redis snapshot and metrics push.
// Every sink is attempted; the first error is returned.
func runSinks(ctx context.Context, cfg *config.Config, res *scraper.Result, stdout io.Writer, logger zerolog.Logger) error {
	var firstErr error
	record := func(err error, msg string) {
		if err == nil {
			return
		}
		logger.Warn().Err(err).Msg(msg)
		if firstErr == nil {
			firstErr = err
		}
	}

	if cfg.Output.CSV != "" {
		path, err := writeCSV(cfg.Output, res)
		record(err, "CSV export failed")
		if err == nil {
			fmt.Fprintf(stdout, "\nData saved to: %s\n", path)
		}
	}

	if cfg.Redis.Addr != "" {
		record(publishSnapshot(ctx, cfg.Redis, res), "Redis publish failed")
	}

	if cfg.Metrics.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := metrics.Push(pushCtx, cfg.Metrics.Pushgateway, cfg.Metrics.Job, map[string]string{"mode": string(res.Mode)})
		cancel()
		record(err, "Metrics push failed")
		if err == nil {
			logger.Info().Str("pushgateway", cfg.Metrics.Pushgateway).Msg("Pushed metrics")
		}
	}

	return firstErr
}

func writeCSV(out config.OutputConfig, res *scraper.Result) (string, error) {
	path := out.CSV
	if path == csvAuto {
		path = export.GenerateFilename(res.ScrapedAt)
	}
	if out.CSVAppend {
		return path, export.AppendCSV(path, res.Rows)
	}
	return path, export.SaveCSV(path, res.Rows)
}

func publishSnapshot(ctx context.Context, rc config.RedisConfig, res *scraper.Result) error {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	defer redisClient.Close()

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := export.NewRedisPublisher(redisClient, rc.Channel).Publish(pubCtx, export.Snapshot{
		ScrapedAt: res.ScrapedAt,
		Mode:      string(res.Mode),
		Pages:     res.Stats.PagesSucceeded,
		Failed:    res.Stats.PagesFailed,
		Rows:      res.Rows,
	})
	return err
}
