// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

import (
	"maps"
	"math"
	"slices"
	"strings"
)

// BanditEvaluation is the outcome of selecting an action for one subject.
// ActionKey is empty when there were no actions to choose from.
type BanditEvaluation struct {
	FlagKey           string
	SubjectKey        string
	SubjectAttributes ContextAttributes
	ActionKey         string
	ActionAttributes  ContextAttributes
	ActionScore       float64
	ActionWeight      float64
	Gamma             float64
	OptimalityGap     float64
	// SelectionFallback is set when no cumulative weight exceeded the
	// subject's shard value and the last action was returned instead.
	SelectionFallback bool
}

// BanditEvaluator selects bandit actions. It is safe for concurrent use.
type BanditEvaluator struct {
	Sharder     Sharder
	TotalShards int
}

// NewBanditEvaluator returns a BanditEvaluator over the default shard space.
func NewBanditEvaluator(s Sharder) *BanditEvaluator {
	return &BanditEvaluator{Sharder: s, TotalShards: DefaultTotalShards}
}

func (e *BanditEvaluator) totalShards() int {
	if e.TotalShards <= 0 {
		return DefaultTotalShards
	}
	return e.TotalShards
}

// EvaluateBandit scores, weighs and deterministically selects one of
// actions for subjectKey.
func (e *BanditEvaluator) EvaluateBandit(flagKey, subjectKey string, subject ContextAttributes, actions map[string]ContextAttributes, model BanditModelData) BanditEvaluation {
	res := BanditEvaluation{
		FlagKey:           flagKey,
		SubjectKey:        subjectKey,
		SubjectAttributes: subject,
		Gamma:             model.Gamma,
	}
	if len(actions) == 0 {
		return res
	}
	scores := ScoreActions(model, subject, actions)
	weights := WeighActions(scores, model.Gamma, model.ActionProbabilityFloor)
	selected, fallback := e.selectAction(flagKey, subjectKey, weights)
	_, bestScore := bestAction(scores)

	res.ActionKey = selected
	res.ActionAttributes = actions[selected]
	res.ActionScore = scores[selected]
	res.ActionWeight = weights[selected]
	res.OptimalityGap = bestScore - scores[selected]
	res.SelectionFallback = fallback
	return res
}

// selectAction orders actions by their shard, then key, and walks the
// cumulative weights until they exceed the subject's shard value.
func (e *BanditEvaluator) selectAction(flagKey, subjectKey string, weights map[string]float64) (action string, fallback bool) {
	total := e.totalShards()
	type ranked struct {
		key   string
		shard int
	}
	order := make([]ranked, 0, len(weights))
	for key := range weights {
		order = append(order, ranked{
			key:   key,
			shard: e.Sharder.Shard(flagKey+"-"+subjectKey+"-"+key, total),
		})
	}
	slices.SortFunc(order, func(a, b ranked) int {
		if a.shard != b.shard {
			return a.shard - b.shard
		}
		return strings.Compare(a.key, b.key)
	})

	shardValue := float64(e.Sharder.Shard(flagKey+"-"+subjectKey, total)) / float64(total)
	cumulative := 0.0
	for _, r := range order {
		cumulative += weights[r.key]
		if cumulative > shardValue {
			return r.key, false
		}
	}
	return order[len(order)-1].key, true
}

// ScoreActions scores every action with its coefficients, or with the
// model's default score when the action has none.
func ScoreActions(model BanditModelData, subject ContextAttributes, actions map[string]ContextAttributes) map[string]float64 {
	scores := make(map[string]float64, len(actions))
	for key, attrs := range actions {
		coeffs, ok := model.Coefficients[key]
		if !ok {
			scores[key] = model.DefaultActionScore
			continue
		}
		scores[key] = ScoreAction(subject, attrs, coeffs)
	}
	return scores
}

// ScoreAction evaluates the linear model of one action.
func ScoreAction(subject, action ContextAttributes, coeffs BanditCoefficients) float64 {
	score := coeffs.Intercept
	score += ScoreNumericAttributes(coeffs.SubjectNumericCoefficients, subject.Numeric)
	score += ScoreCategoricalAttributes(coeffs.SubjectCategoricalCoefficients, subject.Categorical)
	score += ScoreNumericAttributes(coeffs.ActionNumericCoefficients, action.Numeric)
	score += ScoreCategoricalAttributes(coeffs.ActionCategoricalCoefficients, action.Categorical)
	return score
}

// ScoreNumericAttributes sums coefficient*value, using the missing value
// coefficient for absent attributes.
func ScoreNumericAttributes(coeffs []BanditNumericAttributeCoefficient, attrs map[string]float64) float64 {
	score := 0.0
	for _, c := range coeffs {
		if v, ok := attrs[c.AttributeKey]; ok {
			score += c.Coefficient * v
		} else {
			score += c.MissingValueCoefficient
		}
	}
	return score
}

// ScoreCategoricalAttributes sums the configured weight of each observed
// value, using the missing value coefficient for absent attributes and for
// values without a weight.
func ScoreCategoricalAttributes(coeffs []BanditCategoricalAttributeCoefficient, attrs map[string]string) float64 {
	score := 0.0
	for _, c := range coeffs {
		v, ok := attrs[c.AttributeKey]
		if !ok {
			score += c.MissingValueCoefficient
			continue
		}
		if w, ok := c.ValueCoefficients[v]; ok {
			score += w
		} else {
			score += c.MissingValueCoefficient
		}
	}
	return score
}

// WeighActions converts scores into selection probabilities. Every action
// but the best gets max(floor/n, 1/(n+gamma*(best-score))) and the best
// action receives the remainder, never less than zero.
func WeighActions(scores map[string]float64, gamma, probabilityFloor float64) map[string]float64 {
	n := float64(len(scores))
	weights := make(map[string]float64, len(scores))
	if len(scores) == 0 {
		return weights
	}
	best, bestScore := bestAction(scores)
	minProbability := probabilityFloor / n

	remaining := 1.0
	for _, key := range slices.Sorted(maps.Keys(scores)) {
		if key == best {
			continue
		}
		w := math.Max(minProbability, 1/(n+gamma*(bestScore-scores[key])))
		weights[key] = w
		remaining -= w
	}
	weights[best] = math.Max(0, remaining)
	return weights
}

// bestAction returns the highest scoring action. Ties go to the
// lexicographically smallest key.
func bestAction(scores map[string]float64) (string, float64) {
	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, key := range slices.Sorted(maps.Keys(scores)) {
		if s := scores[key]; !found || s > bestScore {
			best, bestScore, found = key, s, true
		}
	}
	return best, bestScore
}
