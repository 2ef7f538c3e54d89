// Package normalize maps heterogeneous listing records onto Row.
//
// Normalization never fails: absent or malformed fields degrade to absent
// values. Two quote encodings are understood:
//
//	{"quote": {"USD": {"price": 1.0, ...}}}
//	{"quotes": [{"name": "EUR", ...}, {"name": "USD", "price": 1.0, ...}]}
package normalize

import (
	"github.com/Sternrassler/cmc-listing-scraper/pkg/payload"
)

// QuoteCurrency is the currency code whose quote is kept.
const QuoteCurrency = "USD"

// Records normalizes every mapping entry of a raw record list. Entries that
// are not mappings are dropped.
func Records(list []payload.Value) []Row {
	rows := make([]Row, 0, len(list))
	for _, v := range list {
		if v.Kind() != payload.KindMapping {
			continue
		}
		rows = append(rows, Record(v))
	}
	return rows
}

// Record normalizes a single raw record.
func Record(v payload.Value) Row {
	row := Row{
		ID:     identity(v),
		Name:   stringField(v, "name"),
		Symbol: stringField(v, "symbol"),
		Rank:   rank(v),
	}

	if q, ok := usdQuote(v); ok {
		row.PriceUSD = floatField(q, "price")
		row.MarketCapUSD = floatField(q, "marketCap")
		row.Change24h = floatField(q, "percentChange24h")
	}
	return row
}

// identity keeps string ids verbatim and numeric ids as their JSON text.
func identity(v payload.Value) string {
	f, ok := v.Field("id")
	if !ok {
		return ""
	}
	switch f.Kind() {
	case payload.KindString:
		s, _ := f.String()
		return s
	case payload.KindNumber:
		return f.Raw()
	default:
		return ""
	}
}

// rank prefers a truthy cmcRank and falls back to rank.
func rank(v payload.Value) *int64 {
	if f, ok := v.Field("cmcRank"); ok && f.Truthy() {
		if n, ok := f.Int(); ok {
			return &n
		}
	}
	if f, ok := v.Field("rank"); ok {
		if n, ok := f.Int(); ok {
			return &n
		}
	}
	return nil
}

func usdQuote(v payload.Value) (payload.Value, bool) {
	if quote, ok := v.MappingField("quote"); ok {
		if usd, ok := quote.MappingField(QuoteCurrency); ok {
			return usd, true
		}
	}

	quotes, ok := v.ListField("quotes")
	if !ok {
		return payload.Value{}, false
	}
	for _, q := range quotes {
		if q.Kind() != payload.KindMapping {
			continue
		}
		if name, ok := q.Field("name"); ok {
			if s, ok := name.String(); ok && s == QuoteCurrency {
				return q, true
			}
		}
	}
	return payload.Value{}, false
}

func stringField(v payload.Value, key string) string {
	f, ok := v.Field(key)
	if !ok {
		return ""
	}
	s, _ := f.String()
	return s
}

func floatField(v payload.Value, key string) *float64 {
	f, ok := v.Field(key)
	if !ok {
		return nil
	}
	n, ok := f.Float()
	if !ok {
		return nil
	}
	return &n
}
