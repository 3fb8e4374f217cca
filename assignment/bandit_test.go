// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package assignment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/dd-ffe-go/flageval"
	"github.com/DataDog/dd-ffe-go/internal/log"
)

// bandit scores discount at 1.0 and premium at 1.3.
func testBandit() *flageval.Bandit {
	return &flageval.Bandit{
		BanditKey:    "offer_bandit",
		ModelName:    "falcon",
		ModelVersion: "v7",
		ModelData: flageval.BanditModelData{
			Gamma:                  0.1,
			DefaultActionScore:     0.0,
			ActionProbabilityFloor: 0.1,
			Coefficients: map[string]flageval.BanditCoefficients{
				"discount": {ActionKey: "discount", Intercept: 1.0},
				"premium":  {ActionKey: "premium", Intercept: 1.3},
			},
		},
	}
}

func banditProvider() *testProvider {
	f := flagWith("offers", flageval.VariationTypeString,
		map[string]any{"offer_bandit": "offer_bandit", "control": "control"},
		catchAll("offer_bandit"))
	p := newTestProvider(f)
	p.bandits["offer_bandit"] = testBandit()
	return p
}

func testActions() map[string]flageval.ContextAttributes {
	return map[string]flageval.ContextAttributes{
		"discount": flageval.NewContextAttributes(map[string]any{"price": 10, "brand": "acme"}),
		"premium":  flageval.NewContextAttributes(map[string]any{"price": 99.5}),
	}
}

func TestGetBanditAction(t *testing.T) {
	l := &testLogger{}
	c, sc := newTestClient(banditProvider(), l, WithSharder(flageval.DeterministicSharder{}))
	subject := flageval.NewContextAttributes(map[string]any{"age": 30, "country": "FR", "member": true})

	res, err := c.GetBanditAction("offers", "alice", subject, testActions(), "control")
	require.NoError(t, err)
	assert.Equal(t, "offer_bandit", res.Variation)
	require.NotNil(t, res.Action)
	// every shard is 0, so the first action in key order is taken
	assert.Equal(t, "discount", *res.Action)

	require.Len(t, l.assignments, 1)
	assert.Equal(t, map[string]any{"age": 30.0, "country": "FR", "member": "true"}, l.assignments[0].SubjectAttributes)

	require.Len(t, l.bandits, 1)
	e := l.bandits[0]
	assert.Equal(t, "offers", e.FlagKey)
	assert.Equal(t, "offer_bandit", e.BanditKey)
	assert.Equal(t, "alice", e.Subject)
	assert.Equal(t, "discount", e.Action)
	assert.InDelta(t, 1/2.03, e.ActionProbability, 1e-9)
	assert.InDelta(t, 0.3, e.OptimalityGap, 1e-9)
	assert.Equal(t, "v7", e.ModelVersion)
	assert.Equal(t, testNow.UTC(), e.Timestamp)
	assert.Equal(t, map[string]float64{"age": 30}, e.SubjectNumericAttributes)
	assert.Equal(t, map[string]string{"country": "FR", "member": "true"}, e.SubjectCategoricalAttributes)
	assert.Equal(t, map[string]float64{"price": 10}, e.ActionNumericAttributes)
	assert.Equal(t, map[string]string{"brand": "acme"}, e.ActionCategoricalAttributes)
	assert.Equal(t, "v9.9.9", e.MetaData.SDKVersion)

	calls := sc.GetCallsByName(metricBanditAction)
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"flag:offers", "bandit:offer_bandit", "action:discount"}, calls[0].Tags())
	assert.Empty(t, sc.GetCallsByName(metricBanditFallback))
}

func TestGetBanditActionSubjectShard(t *testing.T) {
	// a subject shard past the discount weight lands on premium
	sharder := flageval.DeterministicSharder{"offers-alice": 6000}
	c, _ := newTestClient(banditProvider(), nil, WithSharder(sharder))

	res, err := c.GetBanditAction("offers", "alice", flageval.ContextAttributes{}, testActions(), "control")
	require.NoError(t, err)
	require.NotNil(t, res.Action)
	assert.Equal(t, "premium", *res.Action)
}

func TestGetBanditActionNoBandit(t *testing.T) {
	t.Run("variation is not a bandit", func(t *testing.T) {
		p := banditProvider()
		p.flags["offers"].Allocations = []*flageval.Allocation{catchAll("control")}
		l := &testLogger{}
		c, _ := newTestClient(p, l)

		res, err := c.GetBanditAction("offers", "alice", flageval.ContextAttributes{}, testActions(), "default")
		require.NoError(t, err)
		assert.Equal(t, BanditResult{Variation: "control"}, res)
		assert.Len(t, l.assignments, 1)
		assert.Empty(t, l.bandits)
	})

	t.Run("no actions", func(t *testing.T) {
		l := &testLogger{}
		c, _ := newTestClient(banditProvider(), l)

		res, err := c.GetBanditAction("offers", "alice", flageval.ContextAttributes{}, nil, "control")
		require.NoError(t, err)
		assert.Equal(t, BanditResult{Variation: "offer_bandit"}, res)
		assert.Empty(t, l.bandits)
	})

	t.Run("missing flag", func(t *testing.T) {
		c, _ := newTestClient(banditProvider(), nil)
		res, err := c.GetBanditAction("unknown", "alice", flageval.ContextAttributes{}, testActions(), "control")
		require.NoError(t, err)
		assert.Equal(t, BanditResult{Variation: "control"}, res)
	})

	t.Run("default variation names a bandit", func(t *testing.T) {
		c, _ := newTestClient(banditProvider(), nil, WithSharder(flageval.DeterministicSharder{}))
		res, err := c.GetBanditAction("unknown", "alice", flageval.ContextAttributes{}, testActions(), "offer_bandit")
		require.NoError(t, err)
		assert.Equal(t, "offer_bandit", res.Variation)
		require.NotNil(t, res.Action)
		assert.Equal(t, "discount", *res.Action)
	})
}

func TestGetBanditActionTypeMismatch(t *testing.T) {
	p := newTestProvider(flagWith("offers", flageval.VariationTypeInteger, map[string]any{"one": 1.0}, catchAll("one")))
	c, _ := newTestClient(p, nil)
	res, err := c.GetBanditAction("offers", "alice", flageval.ContextAttributes{}, testActions(), "control")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, BanditResult{Variation: "control"}, res)
}

func TestGetBanditActionFallback(t *testing.T) {
	tp := new(log.RecordLogger)
	defer log.UseLogger(tp)()

	// a subject shard beyond the shard space is never covered by the weights
	sharder := flageval.DeterministicSharder{"offers-alice": 20000}
	l := &testLogger{}
	c, sc := newTestClient(banditProvider(), l, WithSharder(sharder))

	res, err := c.GetBanditAction("offers", "alice", flageval.ContextAttributes{}, testActions(), "control")
	require.NoError(t, err)
	require.NotNil(t, res.Action)
	assert.Equal(t, "premium", *res.Action)
	assert.Len(t, l.bandits, 1)
	assert.Equal(t, int64(1), sc.Counts()[metricBanditFallback])

	log.Flush()
	assert.True(t, hasLog(tp, `bandit "offer_bandit" fell back to the last action "premium"`), tp.Logs())
}

// panicSharder fails for bandit action inputs only.
type panicSharder struct{}

func (panicSharder) Shard(input string, totalShards int) int {
	if input == "offers-alice-discount" || input == "offers-alice-premium" {
		panic("sharder failure")
	}
	return 0
}

func TestGetBanditActionPanic(t *testing.T) {
	tp := new(log.RecordLogger)
	defer log.UseLogger(tp)()

	for _, graceful := range []bool{true, false} {
		t.Run(fmt.Sprintf("graceful=%t", graceful), func(t *testing.T) {
			l := &testLogger{}
			c, sc := newTestClient(banditProvider(), l, WithSharder(panicSharder{}), WithGracefulMode(graceful))
			res, err := c.GetBanditAction("offers", "alice", flageval.ContextAttributes{}, testActions(), "control")
			assert.Equal(t, BanditResult{Variation: "control"}, res)
			if graceful {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrEvaluation)
				assert.Contains(t, err.Error(), "sharder failure")
			}
			assert.Empty(t, l.bandits)
			assert.Equal(t, int64(1), sc.CountCallsByTag(sc.GetCallsByName(metricAssignmentError), "bandit:offer_bandit"))
		})
	}
}

func TestGetBanditActionLoggerPanic(t *testing.T) {
	defer log.UseLogger(log.DiscardLogger{})()

	c, sc := newTestClient(banditProvider(), &testLogger{panics: true}, WithSharder(flageval.DeterministicSharder{}))
	res, err := c.GetBanditAction("offers", "alice", flageval.ContextAttributes{}, testActions(), "control")
	require.NoError(t, err)
	require.NotNil(t, res.Action)
	assert.Equal(t, "discount", *res.Action)
	// both the assignment and the bandit event failed
	assert.Equal(t, int64(2), sc.Counts()[metricLogError])
}
