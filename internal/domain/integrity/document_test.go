package integrity

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentAccessors(t *testing.T) {
	d := Document{
		"id":          "inv-1",
		"blank":       "   ",
		"total":       json.Number("120.50"),
		"paid":        100,
		"nan":         math.NaN(),
		"strNumber":   "42",
		"active":      false,
		"items":       []any{map[string]any{"quantity": 2.0}, "junk", Document{"quantity": 1}},
		"nilField":    nil,
		"invoiceCode": "INV-001",
	}

	assert.Equal(t, "inv-1", d.ID())

	_, ok := d.String("blank")
	assert.False(t, ok, "blank strings count as absent")
	s, ok := d.String("total")
	assert.True(t, ok)
	assert.Equal(t, "120.50", s)

	n, ok := d.Number("total")
	assert.True(t, ok)
	assert.InDelta(t, 120.5, n, 1e-9)
	n, ok = d.Number("paid")
	assert.True(t, ok)
	assert.Equal(t, 100.0, n)
	_, ok = d.Number("nan")
	assert.False(t, ok)
	_, ok = d.Number("strNumber")
	assert.False(t, ok, "strings are not coerced")
	_, ok = d.Number("nilField")
	assert.False(t, ok)

	v, key, ok := d.FirstNumber("missing", "paid", "total")
	assert.True(t, ok)
	assert.Equal(t, "paid", key)
	assert.Equal(t, 100.0, v)

	b, ok := d.Bool("active")
	assert.True(t, ok)
	assert.False(t, b)

	assert.Len(t, d.Items("items"), 2)
	assert.Nil(t, d.Items("missing"))

	assert.Equal(t, "INV-001", d.Label("invoiceNumber", "invoiceCode"))
	assert.Equal(t, "inv-1", d.Label("nothing"))
	assert.Equal(t, "<no id>", Document{}.Label())
}

func TestFilterMatch(t *testing.T) {
	d := Document{"id": "p1", "qty": 3.0, "status": "new", "active": true, "gone": nil}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches", nil, true},
		{"by id", ByID("p1"), true},
		{"other id", ByID("p2"), false},
		{"int matches float", Filter{"qty": 3}, true},
		{"json number matches", Filter{"qty": json.Number("3")}, true},
		{"string mismatch", Filter{"status": "won"}, false},
		{"bool", Filter{"active": true}, true},
		{"nil matches missing key", Filter{"absent": nil}, true},
		{"nil matches null value", Filter{"gone": nil}, true},
		{"value does not match missing key", Filter{"absent": "x"}, false},
		{"mixed types never match", Filter{"status": 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(d))
		})
	}
}

func TestScope(t *testing.T) {
	full := Scope{}
	assert.True(t, full.Full())
	assert.True(t, full.Covers("leads"))
	assert.Nil(t, full.Filter())

	one := Scope{EntityType: "leads", EntityID: "l1"}
	assert.False(t, one.Full())
	assert.True(t, one.Covers("leads"))
	assert.False(t, one.Covers("projects"))
	assert.Equal(t, ByID("l1"), one.Filter())
}
