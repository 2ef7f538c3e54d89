// Package export renders ranked rows to the terminal, CSV files and a Redis
// pub/sub channel.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/normalize"
)

// DefaultTopN is the number of rows printed by WriteTable by default.
const DefaultTopN = 10

const (
	tableFormat = "%-5s %-15s %-8s %12s %14s %8s\n"
	tableWidth  = 70
	absent      = "-"
)

// WriteSummary prints the one-line throughput summary.
func WriteSummary(w io.Writer, count int, elapsed time.Duration, mode string) error {
	secs := elapsed.Seconds()
	rate := float64(count) / max(secs, 1e-6)
	_, err := fmt.Fprintf(w, "Fetched %d coins in %.2fs (%.0f coins/sec) | mode=%s\n", count, secs, rate, mode)
	return err
}

// WriteTable prints the first n rows as a fixed-width table. n <= 0 prints
// every row.
func WriteTable(w io.Writer, rows []normalize.Row, n int) error {
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}

	if _, err := fmt.Fprintf(w, tableFormat, "Rank", "Name", "Symbol", "Price", "MktCap", "24h%"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", tableWidth)); err != nil {
		return err
	}

	for _, r := range rows {
		_, err := fmt.Fprintf(w, tableFormat,
			formatRank(r.Rank),
			r.Name,
			r.Symbol,
			formatFloat(r.PriceUSD, "%.2f"),
			formatFloat(r.MarketCapUSD, "%.0f"),
			formatFloat(r.Change24h, "%+.2f"),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func formatRank(rank *int64) string {
	if rank == nil {
		return absent
	}
	return strconv.FormatInt(*rank, 10)
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return absent
	}
	return fmt.Sprintf(format, *v)
}
