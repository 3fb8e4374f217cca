// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package assignment

import (
	"time"

	"github.com/DataDog/dd-ffe-go/flageval"
	"github.com/DataDog/dd-ffe-go/internal"
	"github.com/DataDog/dd-ffe-go/internal/version"
)

// config holds the Client settings.
type config struct {
	// graceful converts evaluation failures into the caller's default.
	graceful    bool
	sharder     flageval.Sharder
	totalShards int
	statsd      internal.StatsdClient
	now         func() time.Time
	sdkLanguage string
	sdkVersion  string
}

func newConfig(opts ...Option) *config {
	c := &config{
		graceful:    internal.BoolEnv("DD_FFE_GRACEFUL_MODE", true),
		sharder:     flageval.MD5Sharder{},
		totalShards: flageval.DefaultTotalShards,
		statsd:      internal.NoopStatsdClient{},
		now:         time.Now,
		sdkLanguage: version.SDKLanguage,
		sdkVersion:  version.Tag,
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

// Option configures a Client.
type Option func(*config)

// WithGracefulMode sets whether evaluation failures return the caller's
// default (true) or an error wrapping ErrEvaluation (false). Validation and
// type mismatch errors are returned in both modes. It defaults to the
// DD_FFE_GRACEFUL_MODE environment variable, or true.
func WithGracefulMode(enabled bool) Option {
	return func(c *config) { c.graceful = enabled }
}

// WithSharder sets the sharder used to bucket subjects.
func WithSharder(s flageval.Sharder) Option {
	return func(c *config) { c.sharder = s }
}

// WithBanditTotalShards sets the shard space used to select bandit actions.
func WithBanditTotalShards(n int) Option {
	return func(c *config) { c.totalShards = n }
}

// WithStatsdClient sets the client receiving assignment metrics.
func WithStatsdClient(s internal.StatsdClient) Option {
	return func(c *config) { c.statsd = s }
}

// WithClock sets the function returning the current time.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithSDKMetadata sets the SDK name and version attached to events.
func WithSDKMetadata(language, version string) Option {
	return func(c *config) {
		c.sdkLanguage = language
		c.sdkVersion = version
	}
}
