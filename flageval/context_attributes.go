// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

// ContextAttributes holds the attributes of a bandit subject or action, split
// by how the bandit model consumes them.
type ContextAttributes struct {
	Numeric     map[string]float64 `json:"numericAttributes"`
	Categorical map[string]string  `json:"categoricalAttributes"`
}

// NewContextAttributes routes numbers to the numeric attributes and every
// other non-nil value to the categorical ones. Booleans become "true" or
// "false".
func NewContextAttributes(m map[string]any) ContextAttributes {
	ca := ContextAttributes{
		Numeric:     make(map[string]float64),
		Categorical: make(map[string]string),
	}
	for k, raw := range m {
		v := ValueOf(raw)
		switch v.Kind() {
		case KindInvalid:
			continue
		case KindNumber:
			ca.Numeric[k], _ = v.Number()
		default:
			ca.Categorical[k] = v.String()
		}
	}
	return ca
}

// Attributes flattens ca for flag evaluation. A categorical attribute hides
// a numeric one with the same name.
func (ca ContextAttributes) Attributes() Attributes {
	attrs := make(Attributes, len(ca.Numeric)+len(ca.Categorical))
	for k, v := range ca.Numeric {
		attrs[k] = NumberValue(v)
	}
	for k, v := range ca.Categorical {
		attrs[k] = StringValue(v)
	}
	return attrs
}
