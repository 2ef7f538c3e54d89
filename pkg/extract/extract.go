// Package extract locates the record list embedded in a listing page's
// server-rendered hydration data.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/payload"
)

const (
	// DataBlockSelector matches the Next.js hydration script element.
	DataBlockSelector = "script#__NEXT_DATA__"

	// ListKey is the field holding the listing records.
	ListKey = "cryptoCurrencyList"

	// MaxSearchDepth bounds the fallback search.
	MaxSearchDepth = 64
)

// Records parses a listing page and returns its raw records in document order.
func Records(html string) ([]payload.Value, error) {
	text, err := DataBlock(html)
	if err != nil {
		return nil, err
	}

	root, err := payload.Parse(text)
	if err != nil {
		return nil, &ExtractionError{Kind: ErrMalformedPayload, Err: err}
	}

	list, ok := LocateList(root)
	if !ok {
		return nil, &ExtractionError{Kind: ErrRecordListNotFound}
	}
	return list, nil
}

// DataBlock returns the text content of the hydration script element.
func DataBlock(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", &ExtractionError{Kind: ErrMissingDataBlock, Err: err}
	}

	sel := doc.Find(DataBlockSelector).First()
	if sel.Length() == 0 {
		return "", &ExtractionError{Kind: ErrMissingDataBlock}
	}

	// A present but blank block is left to the JSON parser and reported as
	// a malformed payload.
	text := sel.Text()
	if text == "" {
		return "", &ExtractionError{Kind: ErrMissingDataBlock}
	}
	return text, nil
}

// LocateList tries the known nested path first and falls back to a
// depth-first search for the first list-valued ListKey field.
func LocateList(root payload.Value) ([]payload.Value, bool) {
	if list, ok := primaryPath(root); ok {
		return list, true
	}
	return search(root, 0)
}

// primaryPath follows props.dehydratedState.queries[].state.data.data.listing.
func primaryPath(root payload.Value) ([]payload.Value, bool) {
	props, ok := root.MappingField("props")
	if !ok {
		return nil, false
	}
	state, ok := props.MappingField("dehydratedState")
	if !ok {
		return nil, false
	}
	queries, ok := state.ListField("queries")
	if !ok {
		return nil, false
	}

	for _, q := range queries {
		if list, ok := queryList(q); ok {
			return list, true
		}
	}
	return nil, false
}

func queryList(q payload.Value) ([]payload.Value, bool) {
	cur := q
	for _, key := range []string{"state", "data", "data", "listing"} {
		next, ok := cur.MappingField(key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur.ListField(ListKey)
}

// search walks mappings in key order and lists in index order. A mapping's
// own ListKey is checked before its children.
func search(v payload.Value, depth int) ([]payload.Value, bool) {
	if depth > MaxSearchDepth {
		return nil, false
	}

	switch v.Kind() {
	case payload.KindMapping:
		if list, ok := v.ListField(ListKey); ok {
			return list, true
		}
		entries, _ := v.Entries()
		for _, e := range entries {
			if list, ok := search(e.Value, depth+1); ok {
				return list, true
			}
		}
	case payload.KindList:
		items, _ := v.List()
		for _, item := range items {
			if list, ok := search(item, depth+1); ok {
				return list, true
			}
		}
	}
	return nil, false
}
