// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package configstore

import (
	"fmt"

	rc "github.com/DataDog/datadog-agent/pkg/remoteconfig/state"

	"github.com/DataDog/dd-ffe-go/internal/log"
	"github.com/DataDog/dd-ffe-go/internal/remoteconfig"
)

const (
	// FlagsProduct is the Remote Config product delivering flag configurations.
	FlagsProduct = "FFE_FLAGS"
	// BanditsProduct is the Remote Config product delivering bandit models.
	BanditsProduct = "FFE_BANDITS"
)

// SubscribeRemoteConfig routes the flag and bandit products of c into s.
func SubscribeRemoteConfig(c *remoteconfig.Client, s *Store) {
	c.Subscribe(FlagsProduct, FlagsCallback(s), remoteconfig.FFEFlags)
	c.Subscribe(BanditsProduct, BanditsCallback(s))
}

// FlagsCallback returns the Remote Config callback storing flag
// configurations into s.
func FlagsCallback(s *Store) remoteconfig.Callback {
	return func(update remoteconfig.ProductUpdate) map[string]rc.ApplyStatus {
		statuses := make(map[string]rc.ApplyStatus, len(update))
		for path, data := range update {
			statuses[path] = processUpdate(path, data, func() { s.SetFlags(&FlagsConfiguration{}) }, func(data []byte) (int, error) {
				cfg, err := s.ApplyFlags(data)
				if err != nil {
					return 0, err
				}
				return len(cfg.Flags), nil
			})
		}
		return statuses
	}
}

// BanditsCallback returns the Remote Config callback storing bandit models
// into s.
func BanditsCallback(s *Store) remoteconfig.Callback {
	return func(update remoteconfig.ProductUpdate) map[string]rc.ApplyStatus {
		statuses := make(map[string]rc.ApplyStatus, len(update))
		for path, data := range update {
			statuses[path] = processUpdate(path, data, func() { s.SetBandits(&BanditsConfiguration{}) }, func(data []byte) (int, error) {
				cfg, err := s.ApplyBandits(data)
				if err != nil {
					return 0, err
				}
				return len(cfg.Bandits), nil
			})
		}
		return statuses
	}
}

// processUpdate handles a single Remote Config file.
func processUpdate(path string, data []byte, remove func(), apply func([]byte) (int, error)) rc.ApplyStatus {
	if data == nil {
		log.Debug("configstore: remote config: removing configuration %q", path)
		remove()
		return rc.ApplyStatus{State: rc.ApplyStateAcknowledged}
	}
	log.Debug("configstore: remote config: processing configuration update %q", path)
	n, err := apply(data)
	if err != nil {
		log.Error("configstore: remote config: failed to apply configuration %q: %v", path, err)
		return rc.ApplyStatus{
			State: rc.ApplyStateError,
			Error: fmt.Sprintf("failed to apply configuration: %v", err),
		}
	}
	log.Debug("configstore: remote config: successfully applied configuration %q with %d entries", path, n)
	return rc.ApplyStatus{State: rc.ApplyStateAcknowledged}
}
