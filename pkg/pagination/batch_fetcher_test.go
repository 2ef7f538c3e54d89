package pagination

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/cmc-listing-scraper/internal/testutil"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/client"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/extract"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/normalize"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/ranking"
	"github.com/Sternrassler/cmc-listing-scraper/pkg/ratelimit"
)

// fakeFetcher serves canned documents per page and records concurrency.
type fakeFetcher struct {
	mu          sync.Mutex
	pages       map[int]string
	errs        map[int]error
	delay       time.Duration
	calls       []int
	inFlight    int
	maxInFlight int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[int]string{}, errs: map[int]error{}}
}

func (f *fakeFetcher) FetchPage(ctx context.Context, page int) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	html, err := f.pages[page], f.errs[page]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	return html, nil
}

func (f *fakeFetcher) withCoins(page, start, n int) *fakeFetcher {
	f.pages[page] = testutil.ListingPage(testutil.CoinsJSON(start, n))
	return f
}

// countingPacer records pauses without sleeping.
type countingPacer struct {
	pauses []time.Duration
}

func (p *countingPacer) Pause(_ context.Context, d time.Duration) error {
	p.pauses = append(p.pauses, d)
	return nil
}

func rowIDs(rows []normalize.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, size int
		want    [][]int
	}{
		{0, 3, nil},
		{3, 2, [][]int{{1, 2}, {3}}},
		{4, 2, [][]int{{1, 2}, {3, 4}}},
		{2, 10, [][]int{{1, 2}}},
		{3, 1, [][]int{{1}, {2}, {3}}},
		{2, 0, [][]int{{1}, {2}}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,size=%d", tt.n, tt.size), func(t *testing.T) {
			if got := Partition(tt.n, tt.size); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Partition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(newFakeFetcher(), nil, Config{BatchSize: 0, Pause: -time.Second})

	cfg := bf.Config()
	if cfg.BatchSize != 1 {
		t.Errorf("BatchSize = %d, want 1", cfg.BatchSize)
	}
	if cfg.Pause != 0 {
		t.Errorf("Pause = %v, want 0", cfg.Pause)
	}
}

func TestFetchBatched_ThreePagesBatchTwoPageTwoFails(t *testing.T) {
	f := newFakeFetcher().withCoins(1, 1, 3).withCoins(3, 7, 3)
	f.errs[2] = &client.FetchError{Page: 2, Class: client.ErrorClassConnection, Err: errors.New("connection reset")}
	pacer := &countingPacer{}

	bf := NewBatchFetcher(f, pacer, Config{BatchSize: 2, Pause: 300 * time.Millisecond})
	res, err := bf.FetchBatched(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}

	if len(pacer.pauses) != 1 || pacer.pauses[0] != 300*time.Millisecond {
		t.Errorf("pauses = %v, want exactly one 300ms pause", pacer.pauses)
	}
	if res.Batches != 2 || res.Pauses != 1 {
		t.Errorf("Batches = %d, Pauses = %d; want 2, 1", res.Batches, res.Pauses)
	}
	if res.PagesSucceeded != 2 || len(res.Failures) != 1 || res.Failures[0].PageNumber != 2 {
		t.Errorf("succeeded = %d, failures = %+v", res.PagesSucceeded, res.Failures)
	}

	want := []string{"1", "2", "3", "7", "8", "9"}
	if got := rowIDs(ranking.Reduce(res.Rows)); !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestFetchBatched_BatchesRunInOrderWithBarrier(t *testing.T) {
	f := newFakeFetcher()
	for p := 1; p <= 5; p++ {
		f.withCoins(p, p*10, 1)
	}
	f.delay = 10 * time.Millisecond

	var batchCalls [][]int
	pacer := ratelimit.PacerFunc(func(context.Context, time.Duration) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.inFlight != 0 {
			t.Errorf("pause started with %d pages still in flight", f.inFlight)
		}
		calls := append([]int(nil), f.calls...)
		batchCalls = append(batchCalls, calls)
		return nil
	})

	bf := NewBatchFetcher(f, pacer, Config{BatchSize: 2, Pause: time.Millisecond})
	if _, err := bf.FetchBatched(context.Background(), 5); err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}

	if len(batchCalls) != 2 {
		t.Fatalf("got %d pauses, want 2", len(batchCalls))
	}
	first := append([]int(nil), batchCalls[0]...)
	sort.Ints(first)
	if !reflect.DeepEqual(first, []int{1, 2}) {
		t.Errorf("pages fetched before first pause = %v, want [1 2]", first)
	}
	second := append([]int(nil), batchCalls[1]...)
	sort.Ints(second)
	if !reflect.DeepEqual(second, []int{1, 2, 3, 4}) {
		t.Errorf("pages fetched before second pause = %v, want [1 2 3 4]", second)
	}
	if f.maxInFlight > 2 {
		t.Errorf("max in flight = %d, want <= batch size 2", f.maxInFlight)
	}
}

func TestFetchBatched_AccumulatesInPageOrder(t *testing.T) {
	f := newFakeFetcher().withCoins(1, 100, 2).withCoins(2, 1, 2)

	bf := NewBatchFetcher(f, &countingPacer{}, Config{BatchSize: 2})
	res, err := bf.FetchBatched(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}

	want := []string{"100", "101", "1", "2"}
	if got := rowIDs(res.Rows); !reflect.DeepEqual(got, want) {
		t.Errorf("accumulated ids = %v, want %v", got, want)
	}
}

func TestFetchBatched_ExtractionFailureIsolated(t *testing.T) {
	f := newFakeFetcher().withCoins(1, 1, 2)
	f.pages[2] = "<html><body>no data here</body></html>"

	bf := NewBatchFetcher(f, &countingPacer{}, Config{BatchSize: 2})
	res, err := bf.FetchBatched(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}

	if len(res.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(res.Rows))
	}
	if len(res.Failures) != 1 || !errors.Is(res.Failures[0].Error, extract.ErrMissingDataBlock) {
		t.Errorf("failures = %+v, want one missing data block", res.Failures)
	}
	if got := ErrorClass(res.Failures[0].Error); got != "extraction" {
		t.Errorf("ErrorClass() = %q, want extraction", got)
	}
}

func TestFetchBatched_DuplicatesAcrossPages(t *testing.T) {
	f := newFakeFetcher()
	f.pages[1] = testutil.ListingPage(`[` + testutil.CoinJSON(5, 3, "Five", "FIV", 1) + `]`)
	f.pages[2] = testutil.ListingPage(`[` + testutil.CoinJSON(5, 7, "Five again", "FIV", 2) + `]`)

	bf := NewBatchFetcher(f, &countingPacer{}, Config{BatchSize: 2})
	res, err := bf.FetchBatched(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}

	out := ranking.Reduce(res.Rows)
	if len(out) != 1 || out[0].ID != "5" || *out[0].Rank != 3 {
		t.Errorf("reduced = %+v, want single id=5 with rank 3", out)
	}
}

func TestFetchBatched_UnionOfSuccessfulPages(t *testing.T) {
	for _, n := range []int{0, 1, 4, 7} {
		t.Run(fmt.Sprintf("pages=%d", n), func(t *testing.T) {
			f := newFakeFetcher()
			want := map[string]bool{}
			for p := 1; p <= n; p++ {
				if p%3 == 0 {
					f.errs[p] = errors.New("boom")
					continue
				}
				f.withCoins(p, p*100, 3)
				for id := p * 100; id < p*100+3; id++ {
					want[fmt.Sprint(id)] = true
				}
			}

			bf := NewBatchFetcher(f, &countingPacer{}, Config{BatchSize: 3, Pause: time.Millisecond})
			res, err := bf.FetchBatched(context.Background(), n)
			if err != nil {
				t.Fatalf("FetchBatched() error = %v", err)
			}

			out := ranking.Reduce(res.Rows)
			if len(out) != len(want) {
				t.Fatalf("got %d rows, want %d", len(out), len(want))
			}
			seen := map[string]bool{}
			for _, r := range out {
				if !want[r.ID] || seen[r.ID] {
					t.Errorf("unexpected or repeated id %s", r.ID)
				}
				seen[r.ID] = true
			}
		})
	}
}

func TestFetchBatched_ZeroPages(t *testing.T) {
	f := newFakeFetcher()
	pacer := &countingPacer{}

	res, err := NewBatchFetcher(f, pacer, DefaultConfig()).FetchBatched(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}
	if len(res.Rows) != 0 || len(f.calls) != 0 || len(pacer.pauses) != 0 {
		t.Errorf("rows=%d calls=%d pauses=%d, want all zero", len(res.Rows), len(f.calls), len(pacer.pauses))
	}
}

func TestFetchBatched_NoPauseWhenDisabled(t *testing.T) {
	f := newFakeFetcher().withCoins(1, 1, 1).withCoins(2, 2, 1).withCoins(3, 3, 1)
	pacer := &countingPacer{}

	if _, err := NewBatchFetcher(f, pacer, Config{BatchSize: 1, Pause: 0}).FetchBatched(context.Background(), 3); err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}
	if len(pacer.pauses) != 0 {
		t.Errorf("pauses = %v, want none", pacer.pauses)
	}
}

func TestFetchBatched_CancelledContextStopsScheduling(t *testing.T) {
	f := newFakeFetcher().withCoins(1, 1, 1).withCoins(2, 2, 1).withCoins(3, 3, 1)
	ctx, cancel := context.WithCancel(context.Background())
	pacer := ratelimit.PacerFunc(func(context.Context, time.Duration) error {
		cancel()
		return nil
	})

	res, err := NewBatchFetcher(f, pacer, Config{BatchSize: 1, Pause: time.Millisecond}).FetchBatched(ctx, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("FetchBatched() error = %v, want context.Canceled", err)
	}
	if len(f.calls) != 1 || len(res.Rows) != 1 {
		t.Errorf("calls = %v, rows = %d; want only page 1", f.calls, len(res.Rows))
	}
}

func TestFetchBatched_StampsScrapedAt(t *testing.T) {
	f := newFakeFetcher().withCoins(1, 1, 2)
	bf := NewBatchFetcher(f, &countingPacer{}, DefaultConfig())
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bf.now = func() time.Time { return fixed }

	res, err := bf.FetchBatched(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}
	for _, r := range res.Rows {
		if !r.ScrapedAt.Equal(fixed) {
			t.Errorf("ScrapedAt = %v, want %v", r.ScrapedAt, fixed)
		}
	}
}

func TestFetchSequential_InOrder(t *testing.T) {
	f := newFakeFetcher().withCoins(1, 1, 2).withCoins(2, 3, 2).withCoins(3, 5, 2)

	res, err := NewBatchFetcher(f, &countingPacer{}, DefaultConfig()).FetchSequential(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchSequential() error = %v", err)
	}
	if !reflect.DeepEqual(f.calls, []int{1, 2, 3}) {
		t.Errorf("calls = %v, want [1 2 3]", f.calls)
	}
	if f.maxInFlight != 1 {
		t.Errorf("max in flight = %d, want 1", f.maxInFlight)
	}
	if len(res.Rows) != 6 || res.PagesSucceeded != 3 {
		t.Errorf("rows = %d, succeeded = %d", len(res.Rows), res.PagesSucceeded)
	}
}

func TestFetchSequential_FirstFailureAborts(t *testing.T) {
	f := newFakeFetcher().withCoins(1, 1, 2).withCoins(3, 5, 2)
	f.errs[2] = &client.FetchError{Page: 2, Class: client.ErrorClassStatus, StatusCode: 503}

	res, err := NewBatchFetcher(f, &countingPacer{}, DefaultConfig()).FetchSequential(context.Background(), 3)
	if err == nil {
		t.Fatal("FetchSequential() should fail on page 2")
	}

	var pageErr *PageError
	if !errors.As(err, &pageErr) || pageErr.Page != 2 {
		t.Errorf("error = %v, want a PageError for page 2", err)
	}
	if class, ok := client.ClassOf(err); !ok || class != client.ErrorClassStatus {
		t.Errorf("ClassOf() = %q, %v", class, ok)
	}
	if !reflect.DeepEqual(f.calls, []int{1, 2}) {
		t.Errorf("calls = %v, want page 3 never requested", f.calls)
	}
	if len(res.Rows) != 2 {
		t.Errorf("partial rows = %d, want 2", len(res.Rows))
	}
}

func TestProcessPage_DropsNonMappingRecords(t *testing.T) {
	f := newFakeFetcher()
	f.pages[1] = testutil.ListingPage(`[1, "x", {"id": 9, "name": "Nine", "rank": 9}, null]`)

	rows, err := NewBatchFetcher(f, nil, DefaultConfig()).ProcessPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "9" || rows[0].Name != "Nine" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestFetchBatched_WithClientBoundsConcurrency(t *testing.T) {
	mock := testutil.NewMockListing()
	defer mock.Close()

	for p := 1; p <= 6; p++ {
		mock.SetPage(p, testutil.MockPageResponse{
			StatusCode: 200,
			Body:       testutil.ListingPage(testutil.CoinsJSON(p*10, 2)),
			Delay:      20 * time.Millisecond,
		})
	}
	mock.SetPage(4, testutil.MockPageResponse{StatusCode: 503, Body: "unavailable"})

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	res, err := NewBatchFetcher(c, &countingPacer{}, Config{BatchSize: 3, Pause: time.Millisecond}).FetchBatched(context.Background(), 6)
	if err != nil {
		t.Fatalf("FetchBatched() error = %v", err)
	}

	if got := mock.GetRequestCount(); got != 6 {
		t.Errorf("requests = %d, want 6", got)
	}
	if got := mock.MaxInFlight(); got > 3 {
		t.Errorf("max in flight = %d, want <= 3", got)
	}
	if res.PagesSucceeded != 5 || len(res.Rows) != 10 {
		t.Errorf("succeeded = %d, rows = %d; want 5, 10", res.PagesSucceeded, len(res.Rows))
	}
	if len(res.Failures) != 1 || ErrorClass(res.Failures[0].Error) != "status" {
		t.Errorf("failures = %+v, want one status failure", res.Failures)
	}
}
