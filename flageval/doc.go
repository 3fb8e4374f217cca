// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

// Package flageval implements the deterministic evaluation engine behind
// feature flag and contextual bandit assignments.
//
// # Overview
//
// The package is pure: it performs no I/O, holds no global mutable state and
// never mutates its inputs. Every exported evaluator can be shared by any
// number of goroutines evaluating against the same configuration snapshot.
//
// # Sharding
//
// Subjects are bucketed with a [Sharder]. [MD5Sharder] hashes its input with
// MD5, reads the first four bytes of the digest as a big-endian uint32 and
// reduces it modulo the shard count. This matches every other SDK, so a
// subject lands in the same bucket regardless of the language evaluating it:
//
//	MD5Sharder{}.Shard("alice", 10000) // 3170
//
// [DeterministicSharder] is a lookup table used by tests.
//
// # Flags
//
// [Evaluator.EvaluateFlag] walks a [Flag]'s allocations in declaration order.
// An allocation is skipped when the evaluation time falls outside its
// optional start/end window, or when it has rules and none of them match the
// subject attributes (augmented with an implicit "id" attribute holding the
// subject key). Within a matching allocation the first split whose shards
// all contain the subject wins:
//
//	ev := flageval.NewEvaluator(flageval.MD5Sharder{})
//	res := ev.EvaluateFlag(flag, "user-1", flageval.NewAttributes(map[string]any{
//	    "country": "US",
//	    "age":     25,
//	}), time.Now())
//	if res.Variation != nil {
//	    // res.Variation.Value holds the assigned value
//	}
//
// # Targeting conditions
//
// Conditions support the MATCHES, NOT_MATCHES, ONE_OF, NOT_ONE_OF, GT, GTE,
// LT, LTE and IS_NULL operators. Every operator except IS_NULL evaluates to
// false when the attribute is absent. Ordering operators compare numbers
// numerically and strict semantic versions ("1.2.3", "2.0.0-rc.1") by
// version precedence.
//
// # Bandits
//
// [BanditEvaluator.EvaluateBandit] scores every candidate action with the
// bandit's linear model, turns the scores into selection probabilities
// using inverse gap weighting bounded below by the action probability floor,
// and picks one action deterministically by sharding the flag and subject
// keys.
package flageval
