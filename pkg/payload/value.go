// Package payload provides a read-only tagged union over parsed JSON documents.
//
// Values wrap gjson results so that mapping traversal follows document key
// order, which keeps structural searches deterministic.
package payload

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned by Parse when the input is not valid JSON.
var ErrInvalidJSON = errors.New("invalid json")

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMapping
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is one node of a parsed JSON tree. The zero Value is null.
type Value struct {
	res gjson.Result
}

// Parse validates and parses a JSON document.
func Parse(text string) (Value, error) {
	if !gjson.Valid(text) {
		return Value{}, ErrInvalidJSON
	}
	return Value{res: gjson.Parse(text)}, nil
}

// MustParse parses text and panics if it is not valid JSON. Intended for tests.
func MustParse(text string) Value {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind {
	switch v.res.Type {
	case gjson.True, gjson.False:
		return KindBool
	case gjson.Number:
		return KindNumber
	case gjson.String:
		return KindString
	case gjson.JSON:
		if v.res.IsArray() {
			return KindList
		}
		if v.res.IsObject() {
			return KindMapping
		}
	}
	return KindNull
}

// Raw returns the JSON text of v.
func (v Value) Raw() string {
	return v.res.Raw
}

// Field looks up key in a mapping. The last occurrence wins on duplicate
// keys, as with common JSON decoders.
func (v Value) Field(key string) (Value, bool) {
	if v.Kind() != KindMapping {
		return Value{}, false
	}
	var found gjson.Result
	ok := false
	v.res.ForEach(func(k, val gjson.Result) bool {
		if k.Str == key {
			found, ok = val, true
		}
		return true
	})
	return Value{res: found}, ok
}

// MappingField returns the field only when it holds a mapping.
func (v Value) MappingField(key string) (Value, bool) {
	f, ok := v.Field(key)
	if !ok || f.Kind() != KindMapping {
		return Value{}, false
	}
	return f, true
}

// ListField returns the elements of the field only when it holds a list.
func (v Value) ListField(key string) ([]Value, bool) {
	f, ok := v.Field(key)
	if !ok {
		return nil, false
	}
	return f.List()
}

// List returns the elements of a list value.
func (v Value) List() ([]Value, bool) {
	if v.Kind() != KindList {
		return nil, false
	}
	items := v.res.Array()
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = Value{res: item}
	}
	return out, true
}

// Entry is one key/value pair of a mapping.
type Entry struct {
	Key   string
	Value Value
}

// Entries returns the pairs of a mapping in document order.
func (v Value) Entries() ([]Entry, bool) {
	if v.Kind() != KindMapping {
		return nil, false
	}
	var out []Entry
	v.res.ForEach(func(k, val gjson.Result) bool {
		out = append(out, Entry{Key: k.Str, Value: Value{res: val}})
		return true
	})
	return out, true
}

// String returns the string held by v.
func (v Value) String() (string, bool) {
	if v.Kind() != KindString {
		return "", false
	}
	return v.res.Str, true
}

// Float returns the number held by v.
func (v Value) Float() (float64, bool) {
	if v.Kind() != KindNumber {
		return 0, false
	}
	return v.res.Num, true
}

// Int returns the number held by v when it is integral. Numeric strings are
// accepted as well since upstream payloads occasionally quote ranks.
func (v Value) Int() (int64, bool) {
	switch v.Kind() {
	case KindNumber:
		f := v.res.Num
		if f != float64(int64(f)) {
			return 0, false
		}
		return v.res.Int(), true
	case KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.res.Str), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Truthy mirrors the usual dynamic-language notion: null, false, zero, the
// empty string and empty containers are falsy.
func (v Value) Truthy() bool {
	switch v.Kind() {
	case KindBool:
		return v.res.Type == gjson.True
	case KindNumber:
		return v.res.Num != 0
	case KindString:
		return v.res.Str != ""
	case KindList:
		items, _ := v.List()
		return len(items) > 0
	case KindMapping:
		entries, _ := v.Entries()
		return len(entries) > 0
	default:
		return false
	}
}
