// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreNumericAttributes(t *testing.T) {
	coeffs := []BanditNumericAttributeCoefficient{
		{AttributeKey: "age", Coefficient: 2.0, MissingValueCoefficient: 0.5},
		{AttributeKey: "height", Coefficient: 1.5, MissingValueCoefficient: 0.3},
	}
	negative := []BanditNumericAttributeCoefficient{
		{AttributeKey: "age", Coefficient: -2.0, MissingValueCoefficient: 0.5},
		{AttributeKey: "height", Coefficient: -1.5, MissingValueCoefficient: 0.3},
	}
	tests := []struct {
		name   string
		coeffs []BanditNumericAttributeCoefficient
		attrs  map[string]float64
		want   float64
	}{
		{name: "all present", coeffs: coeffs, attrs: map[string]float64{"age": 30, "height": 170}, want: 30*2.0 + 170*1.5},
		{name: "some missing", coeffs: coeffs, attrs: map[string]float64{"age": 30}, want: 30*2.0 + 0.3},
		{name: "all missing", coeffs: coeffs, attrs: map[string]float64{}, want: 0.5 + 0.3},
		{name: "empty coefficients", coeffs: nil, attrs: map[string]float64{"age": 30, "height": 170}, want: 0},
		{name: "negative coefficients", coeffs: negative, attrs: map[string]float64{"age": 30, "height": 170}, want: 30*-2.0 + 170*-1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ScoreNumericAttributes(tt.coeffs, tt.attrs), 1e-9)
		})
	}
}

func TestScoreCategoricalAttributes(t *testing.T) {
	coeffs := func(red, blue, large, small float64) []BanditCategoricalAttributeCoefficient {
		return []BanditCategoricalAttributeCoefficient{
			{AttributeKey: "color", MissingValueCoefficient: 0.2, ValueCoefficients: map[string]float64{"red": red, "blue": blue}},
			{AttributeKey: "size", MissingValueCoefficient: 0.3, ValueCoefficients: map[string]float64{"large": large, "small": small}},
		}
	}
	tests := []struct {
		name   string
		coeffs []BanditCategoricalAttributeCoefficient
		attrs  map[string]string
		want   float64
	}{
		{name: "some missing", coeffs: coeffs(1, 0.5, 2, 1), attrs: map[string]string{"color": "red"}, want: 1.0 + 0.3},
		{name: "all missing", coeffs: coeffs(1, 0.5, 2, 1), attrs: map[string]string{}, want: 0.2 + 0.3},
		{name: "empty coefficients", coeffs: nil, attrs: map[string]string{"color": "red", "size": "large"}, want: 0},
		{name: "negative coefficients", coeffs: coeffs(-1, -0.5, -2, -1), attrs: map[string]string{"color": "red", "size": "large"}, want: -1.0 + -2.0},
		{name: "mixed coefficients", coeffs: coeffs(1, -0.5, -2, 1), attrs: map[string]string{"color": "blue", "size": "small"}, want: -0.5 + 1.0},
		{name: "unknown value", coeffs: coeffs(1, 0.5, 2, 1), attrs: map[string]string{"color": "green", "size": "small"}, want: 0.2 + 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ScoreCategoricalAttributes(tt.coeffs, tt.attrs), 1e-9)
		})
	}
}

func TestScoreActions(t *testing.T) {
	model := BanditModelData{
		DefaultActionScore: 0.25,
		Coefficients: map[string]BanditCoefficients{
			"nike": {
				ActionKey:                  "nike",
				Intercept:                  1,
				SubjectNumericCoefficients: []BanditNumericAttributeCoefficient{{AttributeKey: "age", Coefficient: 0.1, MissingValueCoefficient: -1}},
				SubjectCategoricalCoefficients: []BanditCategoricalAttributeCoefficient{
					{AttributeKey: "country", ValueCoefficients: map[string]float64{"US": 0.5}, MissingValueCoefficient: -0.5},
				},
				ActionNumericCoefficients: []BanditNumericAttributeCoefficient{{AttributeKey: "price", Coefficient: -0.01, MissingValueCoefficient: 0}},
				ActionCategoricalCoefficients: []BanditCategoricalAttributeCoefficient{
					{AttributeKey: "category", ValueCoefficients: map[string]float64{"shoes": 0.2}, MissingValueCoefficient: 0.05},
				},
			},
		},
	}
	subject := NewContextAttributes(map[string]any{"age": 20, "country": "US"})
	actions := map[string]ContextAttributes{
		"nike":   NewContextAttributes(map[string]any{"price": 100, "category": "shoes"}),
		"adidas": NewContextAttributes(map[string]any{"price": 90}),
	}
	scores := ScoreActions(model, subject, actions)
	require.Len(t, scores, 2)
	assert.InDelta(t, 1+2+0.5-1+0.2, scores["nike"], 1e-9)
	assert.Equal(t, 0.25, scores["adidas"])
}

func TestWeighActions(t *testing.T) {
	t.Run("single action", func(t *testing.T) {
		w := WeighActions(map[string]float64{"action1": 1.0}, 0.1, 0.1)
		assert.Equal(t, map[string]float64{"action1": 1.0}, w)
	})

	t.Run("multiple actions", func(t *testing.T) {
		w := WeighActions(map[string]float64{"action1": 1.0, "action2": 0.5}, 0.1, 0.1)
		require.Len(t, w, 2)
		assert.Greater(t, w["action1"], 0.5)
		assert.LessOrEqual(t, w["action2"], 0.5)
	})

	t.Run("probability floor", func(t *testing.T) {
		w := WeighActions(map[string]float64{"action1": 1.0, "action2": 0.5, "action3": 0.2}, 0.1, 0.3)
		require.Len(t, w, 3)
		for _, weight := range w {
			assert.GreaterOrEqual(t, weight, 0.1)
		}
	})

	t.Run("gamma effect", func(t *testing.T) {
		w := WeighActions(map[string]float64{"action1": 1.0, "action2": 0.5}, 1.0, 0.1)
		assert.Greater(t, w["action1"], 0.5)
		assert.LessOrEqual(t, w["action2"], 0.5)

		greedy := WeighActions(map[string]float64{"action1": 1.0, "action2": 0.5}, 100, 0)
		assert.Greater(t, greedy["action1"], w["action1"])
	})

	t.Run("all equal scores", func(t *testing.T) {
		w := WeighActions(map[string]float64{"action1": 1.0, "action2": 1.0, "action3": 1.0}, 0.1, 0.1)
		require.Len(t, w, 3)
		for _, weight := range w {
			assert.InEpsilon(t, 1.0/3, weight, 1e-2)
		}
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, WeighActions(map[string]float64{}, 0.1, 0.1))
	})
}

func TestWeighActionsConservation(t *testing.T) {
	for i, scores := range []map[string]float64{
		{"a": 1, "b": 2, "c": 3},
		{"a": -5, "b": 10},
		{"a": 0, "b": 0, "c": 0, "d": 0, "e": 0},
		{"a": 100, "b": 99.5, "c": -42, "d": 7},
	} {
		for _, floor := range []float64{0, 0.1, 0.5, 1} {
			for _, gamma := range []float64{0, 0.1, 1, 50} {
				t.Run(fmt.Sprintf("%d/floor=%v/gamma=%v", i, floor, gamma), func(t *testing.T) {
					w := WeighActions(scores, gamma, floor)
					sum := 0.0
					for _, weight := range w {
						assert.GreaterOrEqual(t, weight, floor/float64(len(scores))-1e-12)
						sum += weight
					}
					assert.Greater(t, sum, 0.0)
					assert.LessOrEqual(t, sum, 1.0+1e-9)
				})
			}
		}
	}
}

func TestBestActionTieBreak(t *testing.T) {
	key, score := bestAction(map[string]float64{"zeta": 2, "alpha": 2, "mid": 1})
	assert.Equal(t, "alpha", key)
	assert.Equal(t, 2.0, score)

	key, _ = bestAction(map[string]float64{"": 1, "b": 1})
	assert.Equal(t, "", key)
}

// twoActionModel scores "discount" at 1.0 and "premium" at 1.3.
func twoActionModel() BanditModelData {
	return BanditModelData{
		Gamma:                  0.1,
		DefaultActionScore:     0,
		ActionProbabilityFloor: 0.1,
		Coefficients: map[string]BanditCoefficients{
			"discount": {ActionKey: "discount", Intercept: 1.0},
			"premium":  {ActionKey: "premium", Intercept: 1.3},
		},
	}
}

func twoActions() map[string]ContextAttributes {
	return map[string]ContextAttributes{
		"discount": NewContextAttributes(map[string]any{"price": 10}),
		"premium":  NewContextAttributes(map[string]any{"price": 50}),
	}
}

func TestEvaluateBandit(t *testing.T) {
	subject := NewContextAttributes(map[string]any{"age": 25, "country": "US"})

	t.Run("no actions", func(t *testing.T) {
		ev := NewBanditEvaluator(MD5Sharder{})
		res := ev.EvaluateBandit("flag", "subject", subject, nil, twoActionModel())
		assert.Empty(t, res.ActionKey)
		assert.Zero(t, res.ActionScore)
		assert.Zero(t, res.ActionWeight)
		assert.Equal(t, 0.1, res.Gamma)
		assert.False(t, res.SelectionFallback)
	})

	t.Run("all shards zero", func(t *testing.T) {
		// every input maps to shard 0: actions sort by key and the first one wins
		ev := &BanditEvaluator{Sharder: DeterministicSharder{}}
		res := ev.EvaluateBandit("flag", "subject", subject, twoActions(), twoActionModel())
		assert.Equal(t, "discount", res.ActionKey)
		assert.InDelta(t, 1/2.03, res.ActionWeight, 1e-9)
		assert.InDelta(t, 0.4926, res.ActionWeight, 1e-4)
		assert.InDelta(t, 1.0, res.ActionScore, 1e-9)
		assert.InDelta(t, 0.3, res.OptimalityGap, 1e-9)
		assert.Equal(t, 10.0, res.ActionAttributes.Numeric["price"])
		assert.Equal(t, "flag", res.FlagKey)
		assert.Equal(t, "subject", res.SubjectKey)
		assert.Equal(t, subject, res.SubjectAttributes)
		assert.False(t, res.SelectionFallback)
	})

	t.Run("action shard ordering", func(t *testing.T) {
		ev := &BanditEvaluator{Sharder: DeterministicSharder{
			"flag-subject-premium":  1,
			"flag-subject-discount": 2,
		}}
		res := ev.EvaluateBandit("flag", "subject", subject, twoActions(), twoActionModel())
		assert.Equal(t, "premium", res.ActionKey)
		assert.InDelta(t, 1-1/2.03, res.ActionWeight, 1e-9)
		assert.Zero(t, res.OptimalityGap)
	})

	t.Run("subject shard value", func(t *testing.T) {
		ev := &BanditEvaluator{Sharder: DeterministicSharder{"flag-subject": 6000}, TotalShards: 10000}
		res := ev.EvaluateBandit("flag", "subject", subject, twoActions(), twoActionModel())
		assert.Equal(t, "premium", res.ActionKey)
		assert.False(t, res.SelectionFallback)
	})

	t.Run("fallback", func(t *testing.T) {
		ev := &BanditEvaluator{Sharder: DeterministicSharder{"flag-subject": 20000}, TotalShards: 10000}
		res := ev.EvaluateBandit("flag", "subject", subject, twoActions(), twoActionModel())
		assert.True(t, res.SelectionFallback)
		assert.Equal(t, "premium", res.ActionKey)
	})

	t.Run("deterministic", func(t *testing.T) {
		ev := NewBanditEvaluator(MD5Sharder{})
		actions := map[string]ContextAttributes{
			"a": NewContextAttributes(map[string]any{"price": 1}),
			"b": NewContextAttributes(map[string]any{"price": 2}),
			"c": NewContextAttributes(map[string]any{"price": 3}),
		}
		first := ev.EvaluateBandit("flag", "user-7", subject, actions, twoActionModel())
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, ev.EvaluateBandit("flag", "user-7", subject, actions, twoActionModel()))
		}
	})
}

func TestBanditUnmarshal(t *testing.T) {
	var b Bandit
	require.NoError(t, json.Unmarshal([]byte(`{
		"banditKey": "banner-bandit",
		"modelName": "falcon",
		"modelVersion": "v123",
		"updatedAt": "2024-01-01T00:00:00Z",
		"modelData": {
			"gamma": 1.0,
			"defaultActionScore": 0.0,
			"actionProbabilityFloor": 0.0,
			"coefficients": {
				"nike": {
					"actionKey": "nike",
					"intercept": 1.0,
					"subjectNumericCoefficients": [{"attributeKey": "age", "coefficient": 1.0, "missingValueCoefficient": 0.0}],
					"subjectCategoricalCoefficients": [{"attributeKey": "gender", "valueCoefficients": {"male": 0.5}, "missingValueCoefficient": 0.0}],
					"actionNumericCoefficients": [],
					"actionCategoricalCoefficients": []
				}
			}
		}
	}`), &b))
	assert.Equal(t, "banner-bandit", b.BanditKey)
	assert.Equal(t, "v123", b.ModelVersion)
	require.Contains(t, b.ModelData.Coefficients, "nike")
	assert.Equal(t, 0.5, b.ModelData.Coefficients["nike"].SubjectCategoricalCoefficients[0].ValueCoefficients["male"])
}

func TestContextAttributes(t *testing.T) {
	ca := NewContextAttributes(map[string]any{
		"age":        30,
		"height":     1.8,
		"country":    "US",
		"subscribed": true,
		"missing":    nil,
	})
	assert.Equal(t, map[string]float64{"age": 30, "height": 1.8}, ca.Numeric)
	assert.Equal(t, map[string]string{"country": "US", "subscribed": "true"}, ca.Categorical)

	attrs := ca.Attributes()
	assert.Len(t, attrs, 4)
	n, ok := attrs["age"].Number()
	assert.True(t, ok)
	assert.Equal(t, 30.0, n)
	assert.Equal(t, "true", attrs["subscribed"].String())
}
