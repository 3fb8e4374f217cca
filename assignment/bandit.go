// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package assignment

import (
	"fmt"

	"github.com/DataDog/dd-ffe-go/exposure"
	"github.com/DataDog/dd-ffe-go/flageval"
	"github.com/DataDog/dd-ffe-go/internal/log"
)

// BanditResult is the outcome of GetBanditAction. Action is nil when the
// variation is not a bandit or no action was supplied.
type BanditResult struct {
	Variation string
	Action    *string
}

// GetBanditAction assigns the string flag flagKey to subjectKey and, when
// the variation names a known bandit, selects one of actions with it.
// Subject attributes are flattened for rule matching.
func (c *Client) GetBanditAction(flagKey, subjectKey string, subject flageval.ContextAttributes, actions map[string]flageval.ContextAttributes, defaultVariation string) (BanditResult, error) {
	result := BanditResult{Variation: defaultVariation}
	res, err := c.evaluate(flagKey, subjectKey, subject.Attributes(), flageval.VariationTypeString)
	if err != nil {
		return result, err
	}
	if res.Assigned() {
		if s, ok := res.Variation.Value.(string); ok {
			result.Variation = s
		}
	}

	bandit, ok := c.provider.GetBandit(result.Variation)
	if !ok || bandit == nil || len(actions) == 0 {
		return result, nil
	}
	action, err := c.selectAction(flagKey, subjectKey, subject, actions, bandit)
	if err != nil {
		if c.cfg.graceful {
			log.Error("assignment: returning default variation: %v", err)
			err = nil
		}
		return BanditResult{Variation: defaultVariation}, err
	}
	result.Action = &action
	return result, nil
}

// selectAction runs the bandit evaluator and logs its choice. A panic is
// returned as an error wrapping ErrEvaluation.
func (c *Client) selectAction(flagKey, subjectKey string, subject flageval.ContextAttributes, actions map[string]flageval.ContextAttributes, bandit *flageval.Bandit) (action string, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.incr(metricAssignmentError, flagKey, "reason:"+reasonPanic, "bandit:"+bandit.BanditKey)
			action, err = "", fmt.Errorf("%w: bandit %q: %v", ErrEvaluation, bandit.BanditKey, r)
		}
	}()

	eval := c.bandits.EvaluateBandit(flagKey, subjectKey, subject, actions, bandit.ModelData)
	if eval.SelectionFallback {
		log.Error("assignment: bandit %q fell back to the last action %q for subject %q, weights do not cover the shard space",
			bandit.BanditKey, eval.ActionKey, subjectKey)
		c.incr(metricBanditFallback, flagKey, "bandit:"+bandit.BanditKey)
	}
	c.logBanditAction(bandit, eval)
	c.incr(metricBanditAction, flagKey, "bandit:"+bandit.BanditKey, "action:"+eval.ActionKey)
	return eval.ActionKey, nil
}

func (c *Client) logBanditAction(bandit *flageval.Bandit, eval flageval.BanditEvaluation) {
	defer func() {
		if r := recover(); r != nil {
			c.incr(metricLogError, eval.FlagKey, "event:bandit")
			log.Error("assignment: failed to log bandit action: %v", r)
		}
	}()
	c.logger.LogBanditAction(exposure.BanditEvent{
		FlagKey:                      eval.FlagKey,
		BanditKey:                    bandit.BanditKey,
		Subject:                      eval.SubjectKey,
		Action:                       eval.ActionKey,
		ActionProbability:            eval.ActionWeight,
		OptimalityGap:                eval.OptimalityGap,
		ModelVersion:                 bandit.ModelVersion,
		Timestamp:                    c.cfg.now().UTC(),
		SubjectNumericAttributes:     nonNil(eval.SubjectAttributes.Numeric),
		SubjectCategoricalAttributes: nonNil(eval.SubjectAttributes.Categorical),
		ActionNumericAttributes:      nonNil(eval.ActionAttributes.Numeric),
		ActionCategoricalAttributes:  nonNil(eval.ActionAttributes.Categorical),
		MetaData:                     c.metadata(),
	})
}

func nonNil[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
