// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

import (
	"encoding/json"
	"math"
	"time"
)

// VariationType is the declared type of every variation of a flag.
type VariationType string

const (
	VariationTypeString  VariationType = "STRING"
	VariationTypeInteger VariationType = "INTEGER"
	VariationTypeNumeric VariationType = "NUMERIC"
	VariationTypeBoolean VariationType = "BOOLEAN"
	VariationTypeJSON    VariationType = "JSON"
)

// Valid reports whether t is a known variation type.
func (t VariationType) Valid() bool {
	switch t {
	case VariationTypeString, VariationTypeInteger, VariationTypeNumeric, VariationTypeBoolean, VariationTypeJSON:
		return true
	}
	return false
}

// Flag is a feature flag definition.
type Flag struct {
	Key           string                `json:"key"`
	Enabled       bool                  `json:"enabled"`
	VariationType VariationType         `json:"variationType"`
	Variations    map[string]*Variation `json:"variations"`
	Allocations   []*Allocation         `json:"allocations"`
	TotalShards   int                   `json:"totalShards"`
}

// UnmarshalJSON decodes a flag, defaulting TotalShards to DefaultTotalShards.
func (f *Flag) UnmarshalJSON(data []byte) error {
	type plain Flag
	p := plain{TotalShards: DefaultTotalShards}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = Flag(p)
	return nil
}

// Variation is one of the values a flag can assign.
type Variation struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// int64Bound is 2^63, the first float64 above the int64 range.
const int64Bound = 1 << 63

// ValueMatches reports whether the runtime type of the variation value
// agrees with t.
func (v *Variation) ValueMatches(t VariationType) bool {
	switch t {
	case VariationTypeString:
		_, ok := v.Value.(string)
		return ok
	case VariationTypeBoolean:
		_, ok := v.Value.(bool)
		return ok
	case VariationTypeNumeric:
		_, ok := ValueOf(v.Value).Number()
		return ok
	case VariationTypeInteger:
		f, ok := ValueOf(v.Value).Number()
		return ok && f == math.Trunc(f) && f >= -int64Bound && f < int64Bound
	case VariationTypeJSON:
		switch val := v.Value.(type) {
		case map[string]any, []any:
			return true
		case string:
			return json.Valid([]byte(val))
		}
	}
	return false
}

// Allocation targets a population with rules and splits it into
// variations. Allocations are evaluated in order.
type Allocation struct {
	Key     string     `json:"key"`
	Rules   []*Rule    `json:"rules"`
	StartAt *time.Time `json:"startAt,omitempty"`
	EndAt   *time.Time `json:"endAt,omitempty"`
	Splits  []*Split   `json:"splits"`
	DoLog   bool       `json:"doLog"`
}

// UnmarshalJSON decodes an allocation, defaulting DoLog to true.
func (a *Allocation) UnmarshalJSON(data []byte) error {
	type plain Allocation
	p := plain{DoLog: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Allocation(p)
	return nil
}

// active reports whether now falls within the allocation window. Both
// bounds are inclusive and optional.
func (a *Allocation) active(now time.Time) bool {
	if a.StartAt != nil && now.Before(*a.StartAt) {
		return false
	}
	if a.EndAt != nil && now.After(*a.EndAt) {
		return false
	}
	return true
}

// Split assigns VariationKey to subjects contained in every shard.
type Split struct {
	VariationKey string            `json:"variationKey"`
	Shards       []*Shard          `json:"shards"`
	ExtraLogging map[string]string `json:"extraLogging,omitempty"`
}

// Shard contains a subject when the subject's bucket under Salt falls in
// any of Ranges.
type Shard struct {
	Salt   string        `json:"salt"`
	Ranges []*ShardRange `json:"ranges"`
}

// ShardRange is the half-open bucket interval [Start, End).
type ShardRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether shard lies within the range.
func (r *ShardRange) Contains(shard int) bool {
	return r.Start <= shard && shard < r.End
}
