// Package value provides a tagged JSON value type.
//
// Plugin manifests carry author-defined JSON (HTTP body templates, tool
// arguments, tool schemas) whose shape is not known at compile time. Instead
// of passing map[string]interface{} around, the engine decodes that JSON into
// Value, a recursive sum type over the six JSON kinds. Objects preserve key
// order, numbers stay float64, and encode/decode is explicit on both ends.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which JSON kind a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "invalid"
}

// Member is one key/value pair of an object.
type Member struct {
	Key string
	Val Value
}

// Value is one JSON value of any kind. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	obj  []Member
	arr  []Value
}

// ── Constructors ────────────────────────────────────────────

func Null() Value            { return Value{} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }

// Array builds an array value from its elements.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, arr: elems}
}

// Object builds an object value; member order is preserved.
func Object(members ...Member) Value {
	return Value{kind: KindObject, obj: members}
}

// ── Accessors ───────────────────────────────────────────────

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether the value is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether the value is a number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the bool payload and whether the value is a bool.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Len returns the number of elements (array) or members (object).
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}

// Index returns the i-th array element; null if out of range or not an array.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null()
	}
	return v.arr[i]
}

// Field returns the named object member.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	for _, m := range v.obj {
		if m.Key == key {
			return m.Val, true
		}
	}
	return Null(), false
}

// Members returns the object members in declaration order.
func (v Value) Members() []Member {
	out := make([]Member, len(v.obj))
	copy(out, v.obj)
	return out
}

// Elems returns the array elements.
func (v Value) Elems() []Value {
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out
}

// WithField returns a copy of an object value with key set (appended or
// replaced in place). On a non-object it returns a fresh single-member object.
func (v Value) WithField(key string, val Value) Value {
	if v.kind != KindObject {
		return Object(Member{Key: key, Val: val})
	}
	members := v.Members()
	for i, m := range members {
		if m.Key == key {
			members[i].Val = val
			return Value{kind: KindObject, obj: members}
		}
	}
	return Value{kind: KindObject, obj: append(members, Member{Key: key, Val: val})}
}

// Text renders scalar values as plain text the way a template would want:
// strings verbatim, numbers without a trailing ".0" when integral, booleans
// as true/false, null as empty. Objects and arrays render as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.num == float64(int64(v.num)) {
			return strconv.FormatInt(int64(v.num), 10)
		}
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return ""
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// ── Conversion helpers ──────────────────────────────────────

// FromGo converts decoded-JSON Go values (string, bool, float64, int,
// map[string]interface{}, []interface{}, nil) into a Value. Map member order
// is whatever Go map iteration yields; decode from raw JSON when order
// matters.
func FromGo(in interface{}) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case map[string]interface{}:
		members := make([]Member, 0, len(t))
		for k, raw := range t {
			v, err := FromGo(raw)
			if err != nil {
				return Null(), err
			}
			members = append(members, Member{Key: k, Val: v})
		}
		return Object(members...), nil
	case []interface{}:
		elems := make([]Value, 0, len(t))
		for _, raw := range t {
			v, err := FromGo(raw)
			if err != nil {
				return Null(), err
			}
			elems = append(elems, v)
		}
		return Array(elems...), nil
	}
	return Null(), fmt.Errorf("unsupported Go value of type %T", in)
}

// Interface converts a Value back to plain Go values (map[string]interface{}
// for objects, []interface{} for arrays). Object order is lost, so use this
// only at boundaries that want ambient dynamic typing (e.g. schema maps for
// LLM wire formats).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindObject:
		m := make(map[string]interface{}, len(v.obj))
		for _, mem := range v.obj {
			m[mem.Key] = mem.Val.Interface()
		}
		return m
	case KindArray:
		s := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			s[i] = e.Interface()
		}
		return s
	}
	return nil
}

// ── Encode / decode ─────────────────────────────────────────

// Decode parses raw JSON into a Value, preserving object member order.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeNext(dec)
	if err != nil {
		return Null(), err
	}
	// Reject trailing garbage after the first value.
	if dec.More() {
		return Null(), fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func decodeNext(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case json.Delim:
		switch t {
		case '{':
			var members []Member
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Null(), fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := decodeNext(dec)
				if err != nil {
					return Null(), err
				}
				members = append(members, Member{Key: key, Val: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Null(), err
			}
			return Object(members...), nil
		case '[':
			var elems []Value
			for dec.More() {
				el, err := decodeNext(dec)
				if err != nil {
					return Null(), err
				}
				elems = append(elems, el)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Null(), err
			}
			return Array(elems...), nil
		}
	}
	return Null(), fmt.Errorf("unexpected JSON token %v", tok)
}

// MarshalJSON encodes the value, emitting object members in stored order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		data, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindNumber:
		if v.num == float64(int64(v.num)) {
			buf.WriteString(strconv.FormatInt(int64(v.num), 10))
		} else {
			buf.WriteString(strconv.FormatFloat(v.num, 'g', -1, 64))
		}
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindObject:
		buf.WriteByte('{')
		for i, m := range v.obj {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := m.Val.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}

// UnmarshalJSON decodes raw JSON in place, preserving object member order.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Decode(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
