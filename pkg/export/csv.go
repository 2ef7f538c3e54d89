package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/normalize"
)

// CSVHeader is the column order of exported files.
var CSVHeader = []string{"id", "rank", "name", "symbol", "price_usd", "market_cap_usd", "chg24h_pct", "scraped_at"}

// GenerateFilename returns a timestamped CSV file name for t in UTC.
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("coinbase_data_%s.csv", t.UTC().Format("20060102_150405"))
}

// SaveCSV writes rows to path, replacing any existing file.
func SaveCSV(path string, rows []normalize.Row) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteCSV(f, rows, true); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// AppendCSV appends rows to path. The header is written only when the file
// does not exist yet.
func AppendCSV(path string, rows []normalize.Row) error {
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteCSV(f, rows, isNew); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return f.Close()
}

// WriteCSV encodes rows to w. Absent values are empty fields.
func WriteCSV(w io.Writer, rows []normalize.Row, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(CSVHeader); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := cw.Write(csvRecord(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(r normalize.Row) []string {
	rank := ""
	if r.Rank != nil {
		rank = strconv.FormatInt(*r.Rank, 10)
	}
	scraped := ""
	if !r.ScrapedAt.IsZero() {
		scraped = r.ScrapedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.ID,
		rank,
		r.Name,
		r.Symbol,
		csvFloat(r.PriceUSD),
		csvFloat(r.MarketCapUSD),
		csvFloat(r.Change24h),
		scraped,
	}
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
