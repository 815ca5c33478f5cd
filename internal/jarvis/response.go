package jarvis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMalformed means the assistant output is not JSON.
	ErrMalformed = errors.New("malformed assistant output")
	// ErrUnexpectedShape means the output is JSON but not an array of objects.
	ErrUnexpectedShape = errors.New("unexpected assistant response shape")
)

// Response is one parsed assistant answer.
type Response struct {
	raw   string
	clean []byte
}

// Field is a single key/value pair of a record, in output order.
type Field struct {
	Key   string
	Value any // string, json.Number, bool, nil, []any or Record
}

// Record is one object of the assistant's answer with its key order kept.
type Record []Field

// Parse validates out as JSON. Raw control characters inside strings are
// accepted, the assistant prints multi-line answers unescaped.
func Parse(out []byte) (Response, error) {
	clean := escapeControlChars(out)
	if !json.Valid(clean) {
		return Response{raw: string(out)}, fmt.Errorf("%w: %q", ErrMalformed, truncate(string(out), 200))
	}
	return Response{raw: string(out), clean: clean}, nil
}

// Raw returns the output exactly as the assistant printed it.
func (r Response) Raw() string { return r.raw }

// Empty reports whether the response carries no JSON at all.
func (r Response) Empty() bool { return len(r.clean) == 0 }

// Records decodes the response as an ordered list of records.
func (r Response) Records() ([]Record, error) {
	if r.Empty() {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.clean))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %s", ErrUnexpectedShape, kindOf(v))
	}
	records := make([]Record, 0, len(items))
	for i, item := range items {
		rec, ok := item.(Record)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %s", ErrUnexpectedShape, i, kindOf(item))
		}
		records = append(records, rec)
	}
	return records, nil
}

// decodeValue reads one JSON value, keeping object key order.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '[':
		list := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	case '{':
		rec := Record{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			rec = rec.set(key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

// set replaces an existing key in place, so a repeated key keeps its first
// position and its last value.
func (r Record) set(key string, v any) Record {
	for i := range r {
		if r[i].Key == key {
			r[i].Value = v
			return r
		}
	}
	return append(r, Field{Key: key, Value: v})
}

// Text renders a value for a chat reply: strings verbatim, everything else
// in repr form (True, None, ['a', 1], {'k': 'v'}).
func Text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return repr(v)
}

func repr(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case string:
		return quote(t)
	case json.Number:
		return numberText(t)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Record:
		parts := make([]string, len(t))
		for i, f := range t {
			parts[i] = quote(f.Key) + ": " + repr(f.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}

// numberText prints a JSON number the way Python prints the int or float it
// decodes to: integers as written, floats in shortest round-trip form with a
// ".0" suffix, or in exponent form outside 1e-4 <= |f| < 1e16.
func numberText(n json.Number) string {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		if lit == "-0" {
			return "0"
		}
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		// Out of range: ParseFloat returns ±Inf with ErrRange.
		if !math.IsInf(f, 0) {
			return lit
		}
	}
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if f != 0 && (exp < -4 || exp >= 16) {
		return sci
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}

// quote wraps s in single quotes, or double quotes when s contains a single
// quote and no double quote.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(q):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case []any:
		return "an array"
	case Record:
		return "an object"
	}
	return fmt.Sprintf("%T", v)
}

// escapeControlChars rewrites raw control characters inside JSON strings as
// \u escapes. Bytes outside strings are copied untouched.
func escapeControlChars(in []byte) []byte {
	in = bytes.TrimSpace(in)
	out := make([]byte, 0, len(in))
	inStr := false
	for i := 0; i < len(in); i++ {
		ch := in[i]
		if !inStr {
			if ch == '"' {
				inStr = true
			}
			out = append(out, ch)
			continue
		}
		switch {
		case ch == '\\' && i+1 < len(in):
			out = append(out, ch, in[i+1])
			i++
		case ch == '"':
			inStr = false
			out = append(out, ch)
		case ch < 0x20:
			out = append(out, `\u00`...)
			out = strconv.AppendUint(out, uint64(ch)>>4, 16)
			out = strconv.AppendUint(out, uint64(ch)&0xf, 16)
		default:
			out = append(out, ch)
		}
	}
	return out
}
