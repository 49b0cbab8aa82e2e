package toon

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Decode parses a document produced by Encoder.Marshal back into the JSON
// data model: map[string]any, []any, int64, float64, string, bool, nil.
func Decode(bs []byte) (any, error) {
	p, err := newParser(string(bs))
	if err != nil {
		return nil, err
	}
	if len(p.lines) == 0 {
		return nil, nil
	}
	first := p.lines[0]
	if first.indent != 0 {
		return nil, errors.New("toon: unexpected indentation at start of document")
	}

	var v any
	switch {
	case len(p.lines) == 1 && first.text == "{}":
		p.pos++
		v = map[string]any{}
	case strings.HasPrefix(first.text, "["):
		// root array
		_, head, rest, err := parseHead(first.text)
		if err != nil {
			return nil, err
		}
		p.pos++
		v, err = p.parseValue(0, head, rest)
		if err != nil {
			return nil, err
		}
	default:
		if _, _, _, err := parseHead(first.text); err != nil {
			if len(p.lines) == 1 {
				p.pos++
				v = parseLiteral(first.text)
				break
			}
			return nil, err
		}
		m := map[string]any{}
		if err := p.parseMapEntries(0, m); err != nil {
			return nil, err
		}
		v = m
	}

	if p.pos != len(p.lines) {
		return nil, errors.Newf("toon: unexpected content at line %d", p.lines[p.pos].num)
	}
	return v, nil
}

type docLine struct {
	num    int
	indent int
	text   string
}

type parser struct {
	lines []docLine
	pos   int
}

func newParser(doc string) (*parser, error) {
	p := &parser{}
	for i, raw := range strings.Split(doc, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		spaces := 0
		for spaces < len(raw) && raw[spaces] == ' ' {
			spaces++
		}
		if spaces < len(raw) && raw[spaces] == '\t' {
			return nil, errors.Newf("toon: tab indentation at line %d", i+1)
		}
		if spaces%2 != 0 {
			return nil, errors.Newf("toon: odd indentation at line %d", i+1)
		}
		p.lines = append(p.lines, docLine{num: i + 1, indent: spaces / 2, text: raw[spaces:]})
	}
	return p, nil
}

type arrayHead struct {
	n      int
	fields []string // non-nil means tabular form
}

// parseHead splits an entry line into key, optional array header and the
// inline remainder after the colon.
func parseHead(text string) (key string, head *arrayHead, rest string, err error) {
	i := 0
	if strings.HasPrefix(text, `"`) {
		end := closingQuote(text)
		if end < 0 {
			return "", nil, "", errors.Newf("toon: unterminated quoted key: %s", text)
		}
		key, err = strconv.Unquote(text[:end+1])
		if err != nil {
			return "", nil, "", errors.Wrapf(err, "toon: bad quoted key: %s", text)
		}
		i = end + 1
	} else {
		for i < len(text) && text[i] != ':' && text[i] != '[' {
			i++
		}
		key = strings.TrimSpace(text[:i])
	}

	if i < len(text) && text[i] == '[' {
		j := strings.IndexByte(text[i:], ']')
		if j < 0 {
			return "", nil, "", errors.Newf("toon: unterminated array header: %s", text)
		}
		n, err := strconv.Atoi(text[i+1 : i+j])
		if err != nil || n < 0 {
			return "", nil, "", errors.Newf("toon: bad array length: %s", text)
		}
		head = &arrayHead{n: n}
		i += j + 1
		if i < len(text) && text[i] == '{' {
			j = strings.IndexByte(text[i:], '}')
			if j < 0 {
				return "", nil, "", errors.Newf("toon: unterminated field list: %s", text)
			}
			for _, f := range splitCSV(text[i+1 : i+j]) {
				head.fields = append(head.fields, asFieldName(f))
			}
			if len(head.fields) == 0 {
				return "", nil, "", errors.Newf("toon: empty field list: %s", text)
			}
			i += j + 1
		}
	}

	if i >= len(text) || text[i] != ':' {
		return "", nil, "", errors.Newf("toon: missing colon: %s", text)
	}
	return key, head, strings.TrimSpace(text[i+1:]), nil
}

// parseMapEntries consumes entries at exactly the given indent into m.
func (p *parser) parseMapEntries(indent int, m map[string]any) error {
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		if ln.indent < indent {
			return nil
		}
		if ln.indent > indent {
			return errors.Newf("toon: unexpected indentation at line %d", ln.num)
		}
		key, head, rest, err := parseHead(ln.text)
		if err != nil {
			return err
		}
		p.pos++
		v, err := p.parseValue(indent, head, rest)
		if err != nil {
			return err
		}
		m[key] = v
	}
	return nil
}

// parseValue parses the value of an entry whose key sits at the given
// indent. Nested content is expected one level deeper.
func (p *parser) parseValue(indent int, head *arrayHead, rest string) (any, error) {
	if head == nil {
		switch {
		case rest == "{}":
			return map[string]any{}, nil
		case rest != "":
			return parseLiteral(rest), nil
		default:
			m := map[string]any{}
			if p.pos < len(p.lines) && p.lines[p.pos].indent > indent {
				if err := p.parseMapEntries(indent+1, m); err != nil {
					return nil, err
				}
			}
			return m, nil
		}
	}

	if head.n == 0 {
		return []any{}, nil
	}

	if head.fields != nil {
		arr := make([]any, 0, head.n)
		for range head.n {
			ln, err := p.next(indent+1, "tabular row")
			if err != nil {
				return nil, err
			}
			p.pos++
			vals := splitCSV(ln.text)
			if len(vals) != len(head.fields) {
				return nil, errors.Newf("toon: row has %d values, want %d at line %d", len(vals), len(head.fields), ln.num)
			}
			row := make(map[string]any, len(head.fields))
			for i, f := range head.fields {
				row[f] = parseLiteral(vals[i])
			}
			arr = append(arr, row)
		}
		return arr, nil
	}

	if rest != "" {
		vals := splitCSV(rest)
		if len(vals) != head.n {
			return nil, errors.Newf("toon: list has %d values, want %d", len(vals), head.n)
		}
		arr := make([]any, 0, head.n)
		for _, v := range vals {
			arr = append(arr, parseLiteral(v))
		}
		return arr, nil
	}

	arr := make([]any, 0, head.n)
	for range head.n {
		item, err := p.parseListItem(indent + 1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, item)
	}
	return arr, nil
}

// parseListItem parses one "-" item at the given indent.
func (p *parser) parseListItem(indent int) (any, error) {
	ln, err := p.next(indent, "list item")
	if err != nil {
		return nil, err
	}
	if ln.text != "-" && !strings.HasPrefix(ln.text, "- ") {
		return nil, errors.Newf("toon: expected list item at line %d", ln.num)
	}
	body := strings.TrimSpace(strings.TrimPrefix(ln.text, "-"))

	if body == "{}" {
		p.pos++
		return map[string]any{}, nil
	}
	if strings.HasPrefix(body, "[") {
		_, head, rest, err := parseHead(body)
		if err != nil {
			return nil, err
		}
		p.pos++
		return p.parseValue(indent, head, rest)
	}
	if key, head, rest, err := parseHead(body); err == nil {
		// object item: first entry inline, remaining entries aligned below
		p.pos++
		v, err := p.parseValue(indent+1, head, rest)
		if err != nil {
			return nil, err
		}
		m := map[string]any{key: v}
		if p.pos < len(p.lines) && p.lines[p.pos].indent == indent+1 {
			if err := p.parseMapEntries(indent+1, m); err != nil {
				return nil, err
			}
		}
		return m, nil
	}

	p.pos++
	return parseLiteral(body), nil
}

func (p *parser) next(indent int, what string) (docLine, error) {
	if p.pos >= len(p.lines) {
		return docLine{}, errors.Newf("toon: unexpected end of document, want %s", what)
	}
	ln := p.lines[p.pos]
	if ln.indent != indent {
		return docLine{}, errors.Newf("toon: bad indentation for %s at line %d", what, ln.num)
	}
	return ln, nil
}

// closingQuote returns the index of the terminating double quote of a
// string literal starting at position 0, or -1.
func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func parseLiteral(s string) any {
	s = strings.TrimSpace(s)
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if strings.HasPrefix(s, `"`) {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// splitCSV splits on commas outside of double quotes and trims each part.
func splitCSV(s string) []string {
	var parts []string
	var cur strings.Builder
	inq := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inq && c == '\\' && i+1 < len(s):
			cur.WriteByte(c)
			i++
			cur.WriteByte(s[i])
			continue
		case c == '"':
			inq = !inq
		case c == ',' && !inq:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	parts = append(parts, strings.TrimSpace(cur.String()))
	return parts
}

func asFieldName(s string) string {
	if strings.HasPrefix(s, `"`) {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}
