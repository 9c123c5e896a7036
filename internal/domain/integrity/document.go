package integrity

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Document is one schema-less record from a tenant collection.
// Accessors treat missing or wrongly-typed fields as absent instead of failing.
type Document map[string]any

// ID returns the business id of the document ("id"), the same key the CRUD layer uses.
func (d Document) ID() string {
	s, _ := d.String("id")
	return s
}

// String returns a non-empty string field.
func (d Document) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	case json.Number:
		return t.String(), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

// Number returns a finite numeric field. Strings are not coerced.
func (d Document) Number(key string) (float64, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return 0, false
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FirstNumber returns the first present numeric field among keys.
func (d Document) FirstNumber(keys ...string) (float64, string, bool) {
	for _, k := range keys {
		if n, ok := d.Number(k); ok {
			return n, k, true
		}
	}
	return 0, "", false
}

// Bool returns a boolean field.
func (d Document) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// Items returns nested objects under key; non-object elements are dropped.
func (d Document) Items(key string) []Document {
	raw, ok := d[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Document, 0, len(raw))
	for _, it := range raw {
		switch m := it.(type) {
		case map[string]any:
			out = append(out, Document(m))
		case Document:
			out = append(out, m)
		}
	}
	return out
}

// Label picks a human readable name for descriptions, falling back to the id.
func (d Document) Label(keys ...string) string {
	for _, k := range keys {
		if s, ok := d.String(k); ok {
			return s
		}
	}
	if id := d.ID(); id != "" {
		return id
	}
	return "<no id>"
}

// Filter is top-level field equality; an empty filter matches every document.
type Filter map[string]any

// ByID is the filter used for entity-scoped revalidation.
func ByID(id string) Filter { return Filter{"id": id} }

// Match reports whether d satisfies every condition in f.
// Numbers compare by value so a decoded float64 matches an int filter.
func (f Filter) Match(d Document) bool {
	for k, want := range f {
		got, ok := d[k]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !equalValue(got, want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	an, aok := Document{"v": a}.Number("v")
	bn, bok := Document{"v": b}.Number("v")
	if aok && bok {
		return an == bn
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return false
}
