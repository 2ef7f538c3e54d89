package normalize

import "time"

// Row is the canonical, schema-stable representation of one listed coin.
// Empty ID, Name or Symbol mean the field was absent; nil pointers likewise.
type Row struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Symbol       string    `json:"symbol,omitempty"`
	Rank         *int64    `json:"rank"`
	PriceUSD     *float64  `json:"price_usd"`
	MarketCapUSD *float64  `json:"market_cap_usd"`
	Change24h    *float64  `json:"change_24h"`
	ScrapedAt    time.Time `json:"scraped_at,omitempty"`
}

// HasID reports whether the row carries an identity.
func (r Row) HasID() bool {
	return r.ID != ""
}
