// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the runtime type held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindJSON:
		return "json"
	default:
		return "invalid"
	}
}

// Value is a subject attribute value. The zero Value is invalid and is
// treated as an absent attribute.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	raw  any
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ValueOf converts a Go value into a Value. Integer and floating point kinds
// become numbers, nil becomes the invalid Value and anything that is not a
// string, number or bool is kept as a JSON value.
func ValueOf(v any) Value {
	switch v := v.(type) {
	case nil:
		return Value{}
	case Value:
		return v
	case string:
		return StringValue(v)
	case bool:
		return BoolValue(v)
	case float64:
		return NumberValue(v)
	case float32:
		return NumberValue(float64(v))
	case int:
		return NumberValue(float64(v))
	case int8:
		return NumberValue(float64(v))
	case int16:
		return NumberValue(float64(v))
	case int32:
		return NumberValue(float64(v))
	case int64:
		return NumberValue(float64(v))
	case uint:
		return NumberValue(float64(v))
	case uint8:
		return NumberValue(float64(v))
	case uint16:
		return NumberValue(float64(v))
	case uint32:
		return NumberValue(float64(v))
	case uint64:
		return NumberValue(float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return NumberValue(f)
		}
		return StringValue(v.String())
	default:
		return Value{kind: KindJSON, raw: v}
	}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Number returns the numeric content of v and whether v is a number.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean content of v and whether v is a bool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Str returns the string content of v and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Interface returns v as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindJSON:
		return v.raw
	default:
		return nil
	}
}

// MarshalJSON encodes v as its plain Go value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// String returns the canonical string form used when matching conditions:
// booleans are "true" or "false", integral numbers have no fractional part
// and structured values are JSON encoded.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.num)
	case KindJSON:
		b, err := json.Marshal(v.raw)
		if err != nil {
			return fmt.Sprint(v.raw)
		}
		return string(b)
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == math.Trunc(f):
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if abs := math.Abs(f); abs < 1e-4 || abs >= 1e16 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Attributes maps attribute names to values. A missing key and an invalid
// Value are both absent attributes.
type Attributes map[string]Value

// NewAttributes converts a map of Go values, dropping nil entries.
func NewAttributes(m map[string]any) Attributes {
	attrs := make(Attributes, len(m))
	for k, v := range m {
		val := ValueOf(v)
		if !val.IsValid() {
			continue
		}
		attrs[k] = val
	}
	return attrs
}

// lookup returns the value named key, reporting false when it is absent.
func (a Attributes) lookup(key string) (Value, bool) {
	v, ok := a[key]
	if !ok || !v.IsValid() {
		return Value{}, false
	}
	return v, true
}

// Map returns the attributes as plain Go values.
func (a Attributes) Map() map[string]any {
	m := make(map[string]any, len(a))
	for k, v := range a {
		if v.IsValid() {
			m[k] = v.Interface()
		}
	}
	return m
}
