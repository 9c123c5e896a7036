package mysql

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
)

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// jsonOrEmpty marshals v, falling back to "{}" for nil maps.
func jsonOrEmpty(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// decodeDocument keeps numbers as json.Number so ids and amounts survive untouched.
func decodeDocument(raw []byte) (integrity.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc integrity.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
