// Package jsontree provides an order-preserving JSON value used wherever
// documents must round-trip with stable member order (OpenAPI reduction,
// schema sanitization, golden-file output).
//
// Values are treated as immutable by the transforms in this module: every
// rewrite returns a new tree instead of mutating its input.
package jsontree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned by Parse when the input is not valid JSON.
var ErrInvalidJSON = errors.New("jsontree: invalid JSON")

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

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
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value *Value
}

// Value is a tagged union over the JSON value kinds.
// Numbers keep their raw textual form so they survive a round trip unchanged.
type Value struct {
	Kind    Kind
	Str     string // string value, or raw number text
	Bool    bool
	Items   []*Value
	Members []Member
}

// Null returns a JSON null.
func Null() *Value { return &Value{Kind: KindNull} }

// Bool returns a JSON boolean.
func Bool(b bool) *Value { return &Value{Kind: KindBool, Bool: b} }

// Number returns a JSON number from its raw text.
func Number(raw string) *Value { return &Value{Kind: KindNumber, Str: raw} }

// String returns a JSON string.
func String(s string) *Value { return &Value{Kind: KindString, Str: s} }

// Array returns a JSON array holding items.
func Array(items ...*Value) *Value { return &Value{Kind: KindArray, Items: items} }

// Object returns a JSON object holding members in the given order.
func Object(members ...Member) *Value { return &Value{Kind: KindObject, Members: members} }

// Parse decodes data into a Value, preserving object member order.
// Duplicate keys keep the position of their first occurrence and the last value.
func Parse(data []byte) (*Value, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

// MustParse is Parse for literals in tests and static tables.
func MustParse(s string) *Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("jsontree: %v: %s", err, s))
	}
	return v
}

func fromResult(r gjson.Result) *Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(r.Raw)
	case gjson.String:
		return String(r.Str)
	}

	if r.IsArray() {
		arr := Array()
		r.ForEach(func(_, item gjson.Result) bool {
			arr.Items = append(arr.Items, fromResult(item))
			return true
		})
		return arr
	}

	obj := Object()
	r.ForEach(func(key, item gjson.Result) bool {
		obj.Set(key.Str, fromResult(item))
		return true
	})
	return obj
}

// IsObject reports whether v is a non-nil object.
func (v *Value) IsObject() bool { return v != nil && v.Kind == KindObject }

// IsArray reports whether v is a non-nil array.
func (v *Value) IsArray() bool { return v != nil && v.Kind == KindArray }

// Fields returns the object members, or nil when v is nil or not an object.
func (v *Value) Fields() []Member {
	if !v.IsObject() {
		return nil
	}
	return v.Members
}

// Elements returns the array items, or nil when v is nil or not an array.
func (v *Value) Elements() []*Value {
	if !v.IsArray() {
		return nil
	}
	return v.Items
}

// Get returns the member value for key, or nil when v is not an object or
// has no such member.
func (v *Value) Get(key string) *Value {
	if !v.IsObject() {
		return nil
	}
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value
		}
	}
	return nil
}

// Path follows keys through nested objects.
func (v *Value) Path(keys ...string) *Value {
	cur := v
	for _, k := range keys {
		cur = cur.Get(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Set replaces the value of key in place, or appends a new member.
// It is meant for building fresh trees, not for rewriting shared ones.
func (v *Value) Set(key string, val *Value) {
	for i := range v.Members {
		if v.Members[i].Key == key {
			v.Members[i].Value = val
			return
		}
	}
	v.Members = append(v.Members, Member{Key: key, Value: val})
}

// Keys returns the object member keys in order.
func (v *Value) Keys() []string {
	if !v.IsObject() {
		return nil
	}
	keys := make([]string, len(v.Members))
	for i, m := range v.Members {
		keys[i] = m.Key
	}
	return keys
}

// Len returns the number of members or items.
func (v *Value) Len() int {
	switch {
	case v.IsObject():
		return len(v.Members)
	case v.IsArray():
		return len(v.Items)
	default:
		return 0
	}
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	return Map(v, func(_ string, n *Value) *Value { return n })
}

// Map rebuilds the tree depth-first. fn is called for every node after its
// children have been rebuilt; key is the member key the node sits under
// ("" for array items and the root). fn receives a fresh node it may return
// as-is or replace. The input tree is never modified.
func Map(v *Value, fn func(key string, node *Value) *Value) *Value {
	return mapNode("", v, fn)
}

func mapNode(key string, v *Value, fn func(string, *Value) *Value) *Value {
	if v == nil {
		return nil
	}
	out := &Value{Kind: v.Kind, Str: v.Str, Bool: v.Bool}
	switch v.Kind {
	case KindArray:
		out.Items = make([]*Value, len(v.Items))
		for i, item := range v.Items {
			out.Items[i] = mapNode("", item, fn)
		}
	case KindObject:
		out.Members = make([]Member, len(v.Members))
		for i, m := range v.Members {
			out.Members[i] = Member{Key: m.Key, Value: mapNode(m.Key, m.Value, fn)}
		}
	}
	return fn(key, out)
}

// Visit walks the tree depth-first in document order. Returning false from
// fn stops the descent below the current node.
func Visit(v *Value, fn func(key string, node *Value) bool) {
	visitNode("", v, fn)
}

func visitNode(key string, v *Value, fn func(string, *Value) bool) {
	if v == nil || !fn(key, v) {
		return
	}
	switch v.Kind {
	case KindArray:
		for _, item := range v.Items {
			visitNode("", item, fn)
		}
	case KindObject:
		for _, m := range v.Members {
			visitNode(m.Key, m.Value, fn)
		}
	}
}

// Equal reports deep equality, including member order.
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber, KindString:
		return a.Str == b.Str
	case KindArray:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
	case KindObject:
		if len(a.Members) != len(b.Members) {
			return false
		}
		for i := range a.Members {
			if a.Members[i].Key != b.Members[i].Key || !Equal(a.Members[i].Value, b.Members[i].Value) {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes v compactly, keeping member order and leaving HTML
// characters unescaped.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent encodes v with two-space indentation.
func MarshalIndent(v *Value) ([]byte, error) {
	compact, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Raw returns the compact encoding as a json.RawMessage.
func (v *Value) Raw() json.RawMessage {
	b, err := v.MarshalJSON()
	if err != nil {
		return nil
	}
	return b
}

func encode(buf *bytes.Buffer, v *Value) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if v.Str == "" {
			return fmt.Errorf("jsontree: empty number")
		}
		buf.WriteString(v.Str)
	case KindString:
		writeString(buf, v.Str)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m.Key)
			buf.WriteByte(':')
			if err := encode(buf, m.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("jsontree: unknown kind %s", v.Kind)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	// Encode never fails for a string; it appends a newline we drop.
	_ = enc.Encode(s)
	buf.Truncate(buf.Len() - 1)
}
