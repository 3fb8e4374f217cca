// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

import (
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Operator is the comparison a Condition applies to a subject attribute.
type Operator string

const (
	OperatorMatches    Operator = "MATCHES"
	OperatorNotMatches Operator = "NOT_MATCHES"
	OperatorGTE        Operator = "GTE"
	OperatorGT         Operator = "GT"
	OperatorLTE        Operator = "LTE"
	OperatorLT         Operator = "LT"
	OperatorOneOf      Operator = "ONE_OF"
	OperatorNotOneOf   Operator = "NOT_ONE_OF"
	OperatorIsNull     Operator = "IS_NULL"
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OperatorMatches, OperatorNotMatches, OperatorGTE, OperatorGT, OperatorLTE,
		OperatorLT, OperatorOneOf, OperatorNotOneOf, OperatorIsNull:
		return true
	}
	return false
}

// Rule is a conjunction of conditions.
type Rule struct {
	Conditions []*Condition `json:"conditions"`
}

// Condition compares the subject attribute named Attribute with Value.
// Value is a string for MATCHES and NOT_MATCHES, a list for ONE_OF and
// NOT_ONE_OF, a bool for IS_NULL and a number or semantic version string for
// the ordering operators.
type Condition struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
}

// MatchesAnyRule reports whether any of rules matches attrs. An empty rule
// list always matches.
func MatchesAnyRule(rules []*Rule, attrs Attributes) bool {
	if len(rules) == 0 {
		return true
	}
	for _, r := range rules {
		if MatchesRule(r, attrs) {
			return true
		}
	}
	return false
}

// MatchesRule reports whether every condition of rule holds for attrs. A
// rule without conditions always matches.
func MatchesRule(rule *Rule, attrs Attributes) bool {
	if rule == nil {
		return false
	}
	for _, c := range rule.Conditions {
		if !EvaluateCondition(c, attrs) {
			return false
		}
	}
	return true
}

// EvaluateCondition evaluates a single condition against attrs.
func EvaluateCondition(c *Condition, attrs Attributes) bool {
	if c == nil {
		return false
	}
	v, present := attrs.lookup(c.Attribute)
	if c.Operator == OperatorIsNull {
		want, ok := c.Value.(bool)
		if !ok {
			return false
		}
		return want == !present
	}
	if !present {
		return false
	}
	switch c.Operator {
	case OperatorMatches:
		matched, ok := searchRegex(c.Value, v)
		return ok && matched
	case OperatorNotMatches:
		matched, ok := searchRegex(c.Value, v)
		return ok && !matched
	case OperatorOneOf:
		list, ok := stringList(c.Value)
		return ok && containsFold(list, v.String())
	case OperatorNotOneOf:
		list, ok := stringList(c.Value)
		return ok && !containsFold(list, v.String())
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE:
		return compare(c.Operator, v, c.Value)
	}
	return false
}

// searchRegex looks for the condition pattern anywhere in the stringified
// attribute. ok is false when the pattern is not a valid regex string.
func searchRegex(condValue any, v Value) (matched, ok bool) {
	pattern, ok := condValue.(string)
	if !ok {
		return false, false
	}
	re, err := loadRegex(pattern)
	if err != nil {
		return false, false
	}
	return re.MatchString(v.String()), true
}

var regexCache sync.Map // map[string]*regexp.Regexp

// loadRegex compiles pattern once and caches the result.
func loadRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := regexCache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// ValidateRegex reports whether pattern compiles.
func ValidateRegex(pattern string) error {
	_, err := loadRegex(pattern)
	return err
}

// stringList stringifies the elements of a list condition value.
func stringList(condValue any) ([]string, bool) {
	switch list := condValue.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			out = append(out, ValueOf(e).String())
		}
		return out, true
	}
	return nil, false
}

func containsFold(list []string, s string) bool {
	for _, e := range list {
		if strings.EqualFold(e, s) {
			return true
		}
	}
	return false
}

// compare applies an ordering operator. Numbers compare numerically with
// numeric condition values and strict semantic versions compare by version
// precedence with semantic version condition values. Every other pairing is
// false.
func compare(op Operator, attr Value, condValue any) bool {
	switch attr.Kind() {
	case KindNumber:
		want, ok := ValueOf(condValue).Number()
		if !ok {
			return false
		}
		got, _ := attr.Number()
		switch {
		case got < want:
			return holds(op, -1)
		case got > want:
			return holds(op, 1)
		case got == want:
			return holds(op, 0)
		}
		return false
	case KindString:
		s, _ := attr.Str()
		got, err := semver.StrictNewVersion(s)
		if err != nil {
			return false
		}
		cs, ok := condValue.(string)
		if !ok {
			return false
		}
		want, err := semver.StrictNewVersion(cs)
		if err != nil {
			return false
		}
		return holds(op, got.Compare(want))
	}
	return false
}

func holds(op Operator, cmp int) bool {
	switch op {
	case OperatorGT:
		return cmp > 0
	case OperatorGTE:
		return cmp >= 0
	case OperatorLT:
		return cmp < 0
	case OperatorLTE:
		return cmp <= 0
	}
	return false
}
