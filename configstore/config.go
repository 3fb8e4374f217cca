// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package configstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/DataDog/dd-ffe-go/flageval"
)

// ErrInvalidConfiguration is returned when a configuration cannot be used
// at all. Configurations where only some flags or bandits are invalid are
// still usable and are returned alongside a non-fatal error.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// FlagsConfiguration is a universal flag configuration document.
type FlagsConfiguration struct {
	CreatedAt        time.Time                  `json:"createdAt"`
	Format           string                     `json:"format"`
	Environment      Environment                `json:"environment"`
	Flags            map[string]*flageval.Flag  `json:"flags"`
	BanditReferences map[string]BanditReference `json:"banditReferences,omitempty"`
}

type Environment struct {
	Name string `json:"name"`
}

// BanditReference lists the flag variations that delegate to a bandit.
type BanditReference struct {
	ModelVersion   string            `json:"modelVersion"`
	FlagVariations []BanditVariation `json:"flagVariations"`
}

type BanditVariation struct {
	Key            string `json:"key"`
	FlagKey        string `json:"flagKey"`
	AllocationKey  string `json:"allocationKey"`
	VariationKey   string `json:"variationKey"`
	VariationValue string `json:"variationValue"`
}

// BanditsConfiguration is the bandit model document.
type BanditsConfiguration struct {
	UpdatedAt time.Time                   `json:"updatedAt"`
	Bandits   map[string]*flageval.Bandit `json:"bandits"`
}

// ParseFlags decodes and validates a flag configuration. Invalid flags are
// removed; the returned error then describes them while the configuration
// is still returned. A nil configuration is returned with an error wrapping
// ErrInvalidConfiguration when nothing is usable.
func ParseFlags(data []byte) (*FlagsConfiguration, error) {
	var cfg FlagsConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal flags: %v", ErrInvalidConfiguration, err)
	}
	err := validateFlagsConfiguration(&cfg)
	if errors.Is(err, ErrInvalidConfiguration) {
		return nil, err
	}
	return &cfg, err
}

func validateFlagsConfiguration(cfg *FlagsConfiguration) error {
	if cfg.Format != "SERVER" {
		return fmt.Errorf("%w: unsupported format %q, expected SERVER", ErrInvalidConfiguration, cfg.Format)
	}
	if cfg.Flags == nil {
		cfg.Flags = map[string]*flageval.Flag{}
	}

	hasFlags := len(cfg.Flags) > 0
	errs := make([]error, 0, len(cfg.Flags))
	maps.DeleteFunc(cfg.Flags, func(flagKey string, flag *flageval.Flag) bool {
		err := validateFlag(flagKey, flag)
		errs = append(errs, err)
		return err != nil
	})
	if hasFlags && len(cfg.Flags) == 0 {
		errs = append(errs, fmt.Errorf("%w: all flags are invalid", ErrInvalidConfiguration))
	}
	return errors.Join(errs...)
}

func validateFlag(flagKey string, flag *flageval.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag %q is nil", flagKey)
	}
	if flag.Key != flagKey {
		return fmt.Errorf("flag key mismatch: map key %q != flag.Key %q", flagKey, flag.Key)
	}
	if !flag.VariationType.Valid() {
		return fmt.Errorf("flag %q has invalid variation type %q", flagKey, flag.VariationType)
	}
	if flag.TotalShards <= 0 {
		return fmt.Errorf("flag %q has non-positive total shards %d", flagKey, flag.TotalShards)
	}
	for key, v := range flag.Variations {
		if v == nil {
			return fmt.Errorf("flag %q variation %q is nil", flagKey, key)
		}
	}

	for i, alloc := range flag.Allocations {
		if alloc == nil {
			return fmt.Errorf("flag %q allocation %d is nil", flagKey, i)
		}
		for j, split := range alloc.Splits {
			if split == nil {
				return fmt.Errorf("flag %q allocation %d split %d is nil", flagKey, i, j)
			}
			for _, shard := range split.Shards {
				if shard == nil {
					return fmt.Errorf("flag %q allocation %d split %d has nil shard", flagKey, i, j)
				}
			}
			if _, ok := flag.Variations[split.VariationKey]; !ok {
				return fmt.Errorf("flag %q allocation %d split %d references non-existent variation %q",
					flagKey, i, j, split.VariationKey)
			}
		}
		for _, rule := range alloc.Rules {
			if rule == nil {
				return fmt.Errorf("flag %q allocation %d has nil rule", flagKey, i)
			}
			for _, cond := range rule.Conditions {
				if cond == nil {
					return fmt.Errorf("flag %q allocation %d rule has nil condition", flagKey, i)
				}
				if cond.Operator != flageval.OperatorMatches && cond.Operator != flageval.OperatorNotMatches {
					continue
				}
				pattern, ok := cond.Value.(string)
				if !ok {
					return fmt.Errorf("flag %q allocation %d rule has condition with operator %q that requires string value",
						flagKey, i, cond.Operator)
				}
				if err := flageval.ValidateRegex(pattern); err != nil {
					return fmt.Errorf("flag %q allocation %d rule has condition with invalid regex %q: %v",
						flagKey, i, pattern, err)
				}
			}
		}
	}
	return nil
}

// ParseBandits decodes and validates a bandit configuration, following the
// same partial failure rules as ParseFlags.
func ParseBandits(data []byte) (*BanditsConfiguration, error) {
	var cfg BanditsConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal bandits: %v", ErrInvalidConfiguration, err)
	}
	if cfg.Bandits == nil {
		cfg.Bandits = map[string]*flageval.Bandit{}
	}
	hasBandits := len(cfg.Bandits) > 0
	errs := make([]error, 0, len(cfg.Bandits))
	maps.DeleteFunc(cfg.Bandits, func(key string, b *flageval.Bandit) bool {
		err := validateBandit(key, b)
		errs = append(errs, err)
		return err != nil
	})
	if hasBandits && len(cfg.Bandits) == 0 {
		return nil, errors.Join(append(errs, fmt.Errorf("%w: all bandits are invalid", ErrInvalidConfiguration))...)
	}
	return &cfg, errors.Join(errs...)
}

func validateBandit(key string, b *flageval.Bandit) error {
	if b == nil {
		return fmt.Errorf("bandit %q is nil", key)
	}
	if b.BanditKey != key {
		return fmt.Errorf("bandit key mismatch: map key %q != banditKey %q", key, b.BanditKey)
	}
	if b.ModelData.Gamma < 0 {
		return fmt.Errorf("bandit %q has negative gamma %v", key, b.ModelData.Gamma)
	}
	if f := b.ModelData.ActionProbabilityFloor; f < 0 || f > 1 {
		return fmt.Errorf("bandit %q has action probability floor %v outside [0, 1]", key, f)
	}
	return nil
}
