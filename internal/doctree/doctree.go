// Package doctree models an indexing result document as a generic
// structured tree. The pipeline treats the document as opaque except for
// two recursive extraction passes over it: collecting the string values
// stored under a key, and collecting every value stored under a key.
package doctree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is one node of a document tree. Map values preserve the key order
// of the source document so extraction passes walk in document order.
type Value struct {
	kind   Kind
	str    string
	num    float64
	boolv  bool
	list   []Value
	keys   []string
	fields map[string]Value
}

func Null() Value               { return Value{kind: KindNull} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(n float64) Value    { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value         { return Value{kind: KindBool, boolv: b} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map builds a map value from alternating key, value pairs.
func Map(pairs ...any) Value {
	v := Value{kind: KindMap, fields: map[string]Value{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i].(string)
		v.keys = append(v.keys, key)
		v.fields[key] = pairs[i+1].(Value)
	}
	return v
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) Str() string     { return v.str }
func (v Value) Num() float64    { return v.num }
func (v Value) Boolean() bool   { return v.boolv }
func (v Value) Len() int        { return len(v.list) }
func (v Value) Index(i int) Value {
	return v.list[i]
}
func (v Value) Keys() []string { return v.keys }

// Field returns the named map field and whether it exists.
func (v Value) Field(key string) (Value, bool) {
	f, ok := v.fields[key]
	return f, ok
}

// Parse decodes a JSON document into a Value tree.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return Value{}, err
	}
	if dec.More() {
		return Value{}, fmt.Errorf("trailing data after document")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v := Value{kind: KindMap, fields: map[string]Value{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				field, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}
				if _, exists := v.fields[key]; !exists {
					v.keys = append(v.keys, key)
				}
				v.fields[key] = field
			}
			// consume closing '}'
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		case '[':
			v := Value{kind: KindList}
			for dec.More() {
				item, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}
				v.list = append(v.list, item)
			}
			// consume closing ']'
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

// CollectStrings returns every string value stored under key, in document
// order, searching the whole tree.
func CollectStrings(v Value, key string) []string {
	var out []string
	for _, val := range CollectValues(v, key) {
		if val.Kind() == KindString {
			out = append(out, val.Str())
		}
	}
	return out
}

// CollectValues returns every leaf value stored under key, in document
// order, searching the whole tree.
func CollectValues(v Value, key string) []Value {
	var out []Value
	walk(v, key, &out)
	return out
}

func walk(v Value, key string, out *[]Value) {
	switch v.kind {
	case KindMap:
		for _, k := range v.keys {
			field := v.fields[k]
			if field.kind == KindMap || field.kind == KindList {
				walk(field, key, out)
			} else if k == key {
				*out = append(*out, field)
			}
		}
	case KindList:
		for _, item := range v.list {
			walk(item, key, out)
		}
	}
}

// Tokenize lower-cases s, strips everything but letters, digits and
// whitespace, and splits it into terms.
func Tokenize(s string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n', r == '\r':
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}
