// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

// Package assignment is the public surface of the SDK. A Client reads flags
// and bandit models from a ConfigurationProvider, evaluates them for a
// subject and reports every logged assignment to an exposure.Logger.
//
// Typed getters never return a value of the wrong type: a flag whose
// declared type differs from the getter's fails with ErrTypeMismatch, and a
// variation whose value does not hold the declared type yields the caller's
// default. Missing flags, disabled flags and subjects outside every
// allocation also yield the default, without an error.
//
// Example:
//
//	store := configstore.NewStore()
//	client := assignment.NewClient(store, exposure.NewCachingLogger(writer))
//	color, err := client.GetStringAssignment("button-color", "user-123", map[string]any{
//		"country": "US",
//	}, "blue")
package assignment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DataDog/dd-ffe-go/configstore"
	"github.com/DataDog/dd-ffe-go/exposure"
	"github.com/DataDog/dd-ffe-go/flageval"
	"github.com/DataDog/dd-ffe-go/internal/log"
)

// ConfigurationProvider returns consistent views of the current flags and
// bandit models. It must be safe for concurrent use.
type ConfigurationProvider interface {
	GetFlag(key string) (*flageval.Flag, bool)
	GetBandit(key string) (*flageval.Bandit, bool)
	FlagKeys() []string
	IsInitialized() bool
}

var _ ConfigurationProvider = (*configstore.Store)(nil)

// Client evaluates flags and bandits. It is safe for concurrent use.
type Client struct {
	provider  ConfigurationProvider
	logger    exposure.Logger
	evaluator *flageval.Evaluator
	bandits   *flageval.BanditEvaluator
	cfg       *config
}

// NewClient returns a Client reading from provider and logging to logger.
// A nil logger drops every event.
func NewClient(provider ConfigurationProvider, logger exposure.Logger, opts ...Option) *Client {
	cfg := newConfig(opts...)
	if logger == nil {
		logger = exposure.NoopLogger{}
	}
	be := flageval.NewBanditEvaluator(cfg.sharder)
	be.TotalShards = cfg.totalShards
	return &Client{
		provider:  provider,
		logger:    logger,
		evaluator: flageval.NewEvaluator(cfg.sharder),
		bandits:   be,
		cfg:       cfg,
	}
}

// GetStringAssignment returns the string variation of flagKey for subjectKey.
func (c *Client) GetStringAssignment(flagKey, subjectKey string, attrs map[string]any, def string) (string, error) {
	return getTyped(c, flagKey, subjectKey, attrs, flageval.VariationTypeString, def, func(v any) (string, bool) {
		s, ok := v.(string)
		return s, ok
	})
}

// GetIntegerAssignment returns the integer variation of flagKey for subjectKey.
func (c *Client) GetIntegerAssignment(flagKey, subjectKey string, attrs map[string]any, def int64) (int64, error) {
	return getTyped(c, flagKey, subjectKey, attrs, flageval.VariationTypeInteger, def, func(v any) (int64, bool) {
		f, ok := flageval.ValueOf(v).Number()
		return int64(f), ok
	})
}

// GetNumericAssignment returns the numeric variation of flagKey for subjectKey.
func (c *Client) GetNumericAssignment(flagKey, subjectKey string, attrs map[string]any, def float64) (float64, error) {
	return getTyped(c, flagKey, subjectKey, attrs, flageval.VariationTypeNumeric, def, func(v any) (float64, bool) {
		return flageval.ValueOf(v).Number()
	})
}

// GetBooleanAssignment returns the boolean variation of flagKey for subjectKey.
func (c *Client) GetBooleanAssignment(flagKey, subjectKey string, attrs map[string]any, def bool) (bool, error) {
	return getTyped(c, flagKey, subjectKey, attrs, flageval.VariationTypeBoolean, def, func(v any) (bool, bool) {
		b, ok := v.(bool)
		return b, ok
	})
}

// GetJSONAssignment returns the decoded JSON variation of flagKey for
// subjectKey. Variations stored as JSON text are decoded.
func (c *Client) GetJSONAssignment(flagKey, subjectKey string, attrs map[string]any, def any) (any, error) {
	return getTyped(c, flagKey, subjectKey, attrs, flageval.VariationTypeJSON, def, decodeJSON)
}

func decodeJSON(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return v, true
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false
	}
	return out, true
}

// GetFlagKeys returns the keys of every known flag.
func (c *Client) GetFlagKeys() []string {
	return c.provider.FlagKeys()
}

// IsInitialized reports whether the provider received a configuration.
func (c *Client) IsInitialized() bool {
	return c.provider.IsInitialized()
}

func getTyped[T any](c *Client, flagKey, subjectKey string, attrs map[string]any, expected flageval.VariationType, def T, conv func(any) (T, bool)) (T, error) {
	res, err := c.evaluate(flagKey, subjectKey, flageval.NewAttributes(attrs), expected)
	if err != nil || !res.Assigned() {
		return def, err
	}
	v, ok := conv(res.Variation.Value)
	if !ok {
		return def, nil
	}
	return v, nil
}

// evaluate runs the flag evaluator for subjectKey and logs the assignment.
// Panics are recovered according to the graceful mode setting.
func (c *Client) evaluate(flagKey, subjectKey string, attrs flageval.Attributes, expected flageval.VariationType) (res flageval.FlagEvaluation, err error) {
	if strings.TrimSpace(flagKey) == "" {
		return res, ErrBlankFlagKey
	}
	if strings.TrimSpace(subjectKey) == "" {
		return res, ErrBlankSubjectKey
	}
	defer func() {
		if r := recover(); r != nil {
			c.incr(metricAssignmentError, flagKey, "reason:"+reasonPanic)
			res = flageval.FlagEvaluation{}
			if c.cfg.graceful {
				log.Error("assignment: evaluating flag %q failed, returning default: %v", flagKey, r)
				return
			}
			err = fmt.Errorf("%w: flag %q: %v", ErrEvaluation, flagKey, r)
		}
	}()

	flag, ok := c.provider.GetFlag(flagKey)
	switch {
	case !ok && !c.provider.IsInitialized():
		log.Info("assignment: configuration not initialized, returning default for flag %q", flagKey)
		c.incr(metricAssignmentDefault, flagKey, "reason:"+reasonNotInitialized)
		return res, nil
	case !ok:
		log.Info("assignment: flag %q not found, returning default", flagKey)
		c.incr(metricAssignmentDefault, flagKey, "reason:"+reasonFlagNotFound)
		return res, nil
	case !flag.Enabled:
		log.Info("assignment: flag %q is disabled, returning default", flagKey)
		c.incr(metricAssignmentDefault, flagKey, "reason:"+reasonFlagDisabled)
		return res, nil
	case flag.VariationType != expected:
		c.incr(metricAssignmentError, flagKey, "reason:"+reasonTypeMismatch)
		return res, fmt.Errorf("%w: flag %q has variation type %s, requested %s",
			ErrTypeMismatch, flagKey, flag.VariationType, expected)
	}

	res = c.evaluator.EvaluateFlag(flag, subjectKey, attrs, c.cfg.now())
	if res.Assigned() && !res.Variation.ValueMatches(expected) {
		log.Warn("assignment: variation %q of flag %q does not hold a %s value, returning default",
			res.Variation.Key, flagKey, expected)
		c.incr(metricAssignmentDefault, flagKey, "reason:"+reasonValueTypeMismatch)
		return flageval.FlagEvaluation{}, nil
	}
	if !res.Assigned() {
		log.Debug("assignment: subject %q is not assigned by flag %q", subjectKey, flagKey)
		c.incr(metricAssignmentDefault, flagKey, "reason:"+reasonUnassigned)
		return res, nil
	}
	if res.DoLog {
		c.logAssignment(res)
	}
	c.incr(metricAssignment, flagKey, "variation:"+res.Variation.Key)
	return res, nil
}

func (c *Client) metadata() exposure.MetaData {
	return exposure.MetaData{SDKLanguage: c.cfg.sdkLanguage, SDKVersion: c.cfg.sdkVersion}
}

// logAssignment hands res to the logger. Logger panics are reported and
// swallowed.
func (c *Client) logAssignment(res flageval.FlagEvaluation) {
	defer func() {
		if r := recover(); r != nil {
			c.incr(metricLogError, res.FlagKey, "event:assignment")
			log.Error("assignment: failed to log assignment: %v", r)
		}
	}()
	c.logger.LogAssignment(exposure.AssignmentEvent{
		Allocation:        res.AllocationKey,
		Experiment:        exposure.ExperimentKey(res.FlagKey, res.AllocationKey),
		FeatureFlag:       res.FlagKey,
		Variation:         res.Variation.Key,
		Subject:           res.SubjectKey,
		Timestamp:         c.cfg.now().UTC(),
		SubjectAttributes: res.SubjectAttributes.Map(),
		ExtraLogging:      res.ExtraLogging,
		MetaData:          c.metadata(),
	})
}
