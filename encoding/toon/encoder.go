// Package toon implements a compact, indentation-based serialization of
// JSON-shaped values. Homogeneous object arrays fold into a tabular form
// with a single header row, which is what makes the format cheap in model
// tokens:
//
//	results[2]{name,score}:
//	  web_search,0.92
//	  web_fetch,0.87
//
// Scalar arrays render inline (key[N]: a,b,c), nested objects by
// indentation, and mixed arrays as "-" list items. The decoder restores
// the exact structure.
package toon

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	n, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	switch t := n.(type) {
	case map[string]any:
		if len(t) == 0 {
			b.WriteString("{}\n")
		} else {
			appendMapEntries(&b, 0, t)
		}
	case []any:
		appendArray(&b, 0, "", t)
	default:
		b.WriteString(literal(n))
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	v, err := Decode(bs)
	if err != nil {
		return err
	}
	if p, ok := ret.(*any); ok {
		*p = v
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "toon: unable to remarshal decoded value")
	}
	return json.Unmarshal(raw, ret)
}

// normalize reduces an arbitrary Go value to the JSON data model:
// map[string]any, []any, json.Number, string, bool, nil.
func normalize(v any) (any, error) {
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "toon: unsupported value")
	}
	dec := json.NewDecoder(bytes.NewReader(bs))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Wrap(err, "toon: unable to normalize value")
	}
	return out, nil
}

func appendMapEntries(b *strings.Builder, depth int, m map[string]any) {
	for _, k := range sortedKeys(m) {
		appendEntry(b, depth, k, m[k])
	}
}

func appendEntry(b *strings.Builder, depth int, key string, v any) {
	indent := strings.Repeat("  ", depth)
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			b.WriteString(indent + quoteIfNeeded(key) + ": {}\n")
			return
		}
		b.WriteString(indent + quoteIfNeeded(key) + ":\n")
		appendMapEntries(b, depth+1, t)
	case []any:
		appendArray(b, depth, quoteIfNeeded(key), t)
	default:
		b.WriteString(indent + quoteIfNeeded(key) + ": " + literal(t) + "\n")
	}
}

func appendArray(b *strings.Builder, depth int, keyPart string, arr []any) {
	indent := strings.Repeat("  ", depth)
	n := len(arr)
	if n == 0 {
		b.WriteString(indent + keyPart + "[0]:\n")
		return
	}
	if allScalars(arr) {
		row := make([]string, n)
		for i, it := range arr {
			row[i] = literal(it)
		}
		b.WriteString(indent + keyPart + "[" + strconv.Itoa(n) + "]: " + strings.Join(row, ",") + "\n")
		return
	}
	if fields, ok := tabularFields(arr); ok {
		quoted := make([]string, len(fields))
		for i, f := range fields {
			quoted[i] = quoteIfNeeded(f)
		}
		b.WriteString(indent + keyPart + "[" + strconv.Itoa(n) + "]{" + strings.Join(quoted, ",") + "}:\n")
		rowIndent := strings.Repeat("  ", depth+1)
		for _, it := range arr {
			m := it.(map[string]any)
			row := make([]string, len(fields))
			for i, f := range fields {
				row[i] = literal(m[f])
			}
			b.WriteString(rowIndent + strings.Join(row, ",") + "\n")
		}
		return
	}
	b.WriteString(indent + keyPart + "[" + strconv.Itoa(n) + "]:\n")
	for _, it := range arr {
		appendListItem(b, depth+1, it)
	}
}

// appendListItem renders one element of a non-uniform array. Objects put
// their first entry inline after the dash, remaining entries align under it.
func appendListItem(b *strings.Builder, depth int, item any) {
	indent := strings.Repeat("  ", depth)
	switch t := item.(type) {
	case map[string]any:
		if len(t) == 0 {
			b.WriteString(indent + "- {}\n")
			return
		}
		var tmp strings.Builder
		appendMapEntries(&tmp, depth+1, t)
		b.WriteString(dashFirstLine(tmp.String(), depth))
	case []any:
		var tmp strings.Builder
		appendArray(&tmp, depth+1, "", t)
		b.WriteString(dashFirstLine(tmp.String(), depth))
	default:
		b.WriteString(indent + "- " + literal(item) + "\n")
	}
}

// dashFirstLine replaces the last indent unit of the first rendered line
// with "- ", turning a block rendered one level deeper into a list item.
func dashFirstLine(block string, depth int) string {
	prefix := strings.Repeat("  ", depth)
	return prefix + "- " + strings.TrimPrefix(block, prefix+"  ")
}

func allScalars(arr []any) bool {
	for _, it := range arr {
		if !isScalar(it) {
			return false
		}
	}
	return true
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, json.Number:
		return true
	}
	return false
}

// tabularFields reports whether every element is an object with the same
// keys and only scalar values, so the array can fold into tabular form.
func tabularFields(arr []any) ([]string, bool) {
	first, ok := arr[0].(map[string]any)
	if !ok || len(first) == 0 {
		return nil, false
	}
	fields := sortedKeys(first)
	for _, it := range arr {
		m, ok := it.(map[string]any)
		if !ok || len(m) != len(fields) {
			return nil, false
		}
		for _, f := range fields {
			v, ok := m[f]
			if !ok || !isScalar(v) {
				return nil, false
			}
		}
	}
	return fields, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case string:
		return quoteIfNeeded(t)
	default:
		// normalize guarantees the JSON data model; anything else is a bug.
		bs, _ := json.Marshal(t)
		return string(bs)
	}
}

func quoteIfNeeded(s string) string {
	if needsQuoting(s) {
		return strconv.Quote(s)
	}
	return s
}

// needsQuoting reports whether a bare rendering of s would be ambiguous:
// it could parse as another literal, collide with structural characters,
// or lose surrounding whitespace.
func needsQuoting(s string) bool {
	switch s {
	case "", "null", "true", "false", "{}":
		return true
	}
	if s[0] == ' ' || s[len(s)-1] == ' ' {
		return true
	}
	if s[0] == '-' || s[0] == '[' || s[0] == '"' {
		return true
	}
	if strings.ContainsAny(s, `",:{}[]#`+"\n\t\r") {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}
