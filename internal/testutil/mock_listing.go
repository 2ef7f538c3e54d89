// Package testutil provides testing utilities for the listing scraper.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPageResponse defines the behavior for one mocked listing page.
type MockPageResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockListing is a configurable listing site for testing. Pages are keyed by
// the value of the page query parameter; the bare path is page 1.
type MockListing struct {
	server *httptest.Server
	mu     sync.RWMutex
	pages  map[int]MockPageResponse

	inFlight    int
	maxInFlight int

	requestCount      int
	requestedPages    []int
	lastRequestHeader http.Header
}

// NewMockListing creates a new mock listing server.
func NewMockListing() *MockListing {
	mock := &MockListing{
		pages: make(map[int]MockPageResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if raw := r.URL.Query().Get("page"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "bad page", http.StatusBadRequest)
				return
			}
			page = n
		}

		mock.mu.Lock()
		mock.requestCount++
		mock.requestedPages = append(mock.requestedPages, page)
		mock.lastRequestHeader = r.Header.Clone()
		mock.inFlight++
		if mock.inFlight > mock.maxInFlight {
			mock.maxInFlight = mock.inFlight
		}
		resp, exists := mock.pages[page]
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if !exists {
			http.NotFound(w, r)
			return
		}
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		w.Write([]byte(resp.Body))
	}))

	return mock
}

// URL returns the mock server base URL with a trailing slash.
func (m *MockListing) URL() string {
	return m.server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockListing) Close() {
	m.server.Close()
}

// SetPage configures the response for a page number.
func (m *MockListing) SetPage(page int, resp MockPageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = resp
}

// SetListingPage serves a healthy page embedding the given records JSON array.
func (m *MockListing) SetListingPage(page int, recordsJSON string) {
	m.SetPage(page, MockPageResponse{
		StatusCode: http.StatusOK,
		Body:       ListingPage(recordsJSON),
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockListing) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetRequestedPages returns the page numbers in the order they were requested.
func (m *MockListing) GetRequestedPages() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.requestedPages...)
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockListing) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader.Clone()
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockListing) MaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxInFlight
}

// ListingPage renders an HTML document whose hydration block carries
// recordsJSON at the usual nested location.
func ListingPage(recordsJSON string) string {
	data := fmt.Sprintf(`{"props":{"pageProps":{},"dehydratedState":{"queries":[`+
		`{"queryKey":["global"],"state":{"data":{"status":"ok"}}},`+
		`{"queryKey":["listing"],"state":{"data":{"data":{"listing":{"cryptoCurrencyList":%s,"totalCount":"9000"}}}}}`+
		`]}}}`, recordsJSON)
	return NextDataPage(data)
}

// NextDataPage renders an HTML document with an arbitrary hydration payload.
func NextDataPage(payloadJSON string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Listing</title></head><body>")
	b.WriteString(`<div id="__next"><table><tr><td>placeholder</td></tr></table></div>`)
	b.WriteString(`<script id="__NEXT_DATA__" type="application/json">`)
	b.WriteString(payloadJSON)
	b.WriteString("</script></body></html>")
	return b.String()
}

// CoinJSON renders one record in the quote.USD shape.
func CoinJSON(id int, rank int, name, symbol string, price float64) string {
	return fmt.Sprintf(`{"id":%d,"name":%q,"symbol":%q,"cmcRank":%d,`+
		`"quote":{"USD":{"price":%g,"marketCap":%g,"percentChange24h":1.5}}}`,
		id, name, symbol, rank, price, price*1000)
}

// CoinsJSON renders a JSON array of records for ids start..start+n-1 with
// rank equal to id.
func CoinsJSON(start, n int) string {
	parts := make([]string, 0, n)
	for id := start; id < start+n; id++ {
		parts = append(parts, CoinJSON(id, id, fmt.Sprintf("Coin %d", id), fmt.Sprintf("C%d", id), float64(id)))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
