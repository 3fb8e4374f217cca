// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

import (
	"maps"
	"time"
)

// FlagEvaluation is the outcome of evaluating a flag for one subject.
// Variation is nil when no allocation assigned the subject.
type FlagEvaluation struct {
	FlagKey           string
	VariationType     VariationType
	SubjectKey        string
	SubjectAttributes Attributes
	AllocationKey     string
	Variation         *Variation
	ExtraLogging      map[string]string
	DoLog             bool
}

// Assigned reports whether a variation was chosen.
func (e FlagEvaluation) Assigned() bool {
	return e.Variation != nil
}

// Evaluator evaluates flags. It is safe for concurrent use.
type Evaluator struct {
	Sharder Sharder
}

// NewEvaluator returns an Evaluator bucketing subjects with s.
func NewEvaluator(s Sharder) *Evaluator {
	return &Evaluator{Sharder: s}
}

// EvaluateFlag returns the variation flag assigns to subjectKey at now.
// Allocations are tried in order and the first split fully containing the
// subject wins.
func (e *Evaluator) EvaluateFlag(flag *Flag, subjectKey string, attrs Attributes, now time.Time) FlagEvaluation {
	if !flag.Enabled {
		return noneResult(flag, subjectKey, attrs)
	}
	ruleAttrs := withSubjectID(subjectKey, attrs)
	for _, alloc := range flag.Allocations {
		if alloc == nil || !alloc.active(now) {
			continue
		}
		if !MatchesAnyRule(alloc.Rules, ruleAttrs) {
			continue
		}
		for _, split := range alloc.Splits {
			if split == nil || !e.matchesSplit(split, subjectKey, flag.TotalShards) {
				continue
			}
			extra := maps.Clone(split.ExtraLogging)
			if extra == nil {
				extra = map[string]string{}
			}
			return FlagEvaluation{
				FlagKey:           flag.Key,
				VariationType:     flag.VariationType,
				SubjectKey:        subjectKey,
				SubjectAttributes: attrs,
				AllocationKey:     alloc.Key,
				Variation:         flag.Variations[split.VariationKey],
				ExtraLogging:      extra,
				DoLog:             alloc.DoLog,
			}
		}
	}
	return noneResult(flag, subjectKey, attrs)
}

func (e *Evaluator) matchesSplit(split *Split, subjectKey string, totalShards int) bool {
	for _, shard := range split.Shards {
		if !e.MatchesShard(shard, subjectKey, totalShards) {
			return false
		}
	}
	return true
}

// MatchesShard reports whether the bucket of "<salt>-<subjectKey>" falls in
// any range of shard. totalShards must be positive.
func (e *Evaluator) MatchesShard(shard *Shard, subjectKey string, totalShards int) bool {
	if shard == nil {
		return false
	}
	h := e.Sharder.Shard(shard.Salt+"-"+subjectKey, totalShards)
	for _, r := range shard.Ranges {
		if r != nil && r.Contains(h) {
			return true
		}
	}
	return false
}

// withSubjectID adds the implicit "id" attribute. A caller supplied "id"
// takes precedence.
func withSubjectID(subjectKey string, attrs Attributes) Attributes {
	merged := make(Attributes, len(attrs)+1)
	merged["id"] = StringValue(subjectKey)
	for k, v := range attrs {
		if v.IsValid() {
			merged[k] = v
		}
	}
	return merged
}

func noneResult(flag *Flag, subjectKey string, attrs Attributes) FlagEvaluation {
	return FlagEvaluation{
		FlagKey:           flag.Key,
		VariationType:     flag.VariationType,
		SubjectKey:        subjectKey,
		SubjectAttributes: attrs,
		ExtraLogging:      map[string]string{},
	}
}
