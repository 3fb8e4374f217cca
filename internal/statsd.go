// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package internal

import "github.com/DataDog/datadog-go/v5/statsd"

// StatsdClient is the subset of the DogStatsD client used to report
// assignment and bandit health metrics.
type StatsdClient interface {
	Incr(name string, tags []string, rate float64) error
	Flush() error
	Close() error
}

var _ StatsdClient = (*statsd.Client)(nil)

// NewStatsdClient returns a DogStatsD client that sends to addr, tagging
// every metric with globalTags.
func NewStatsdClient(addr string, globalTags []string) (StatsdClient, error) {
	return statsd.New(addr,
		statsd.WithMaxMessagesPerPayload(40),
		statsd.WithTags(globalTags),
		statsd.WithNamespace("datadog."),
	)
}

// NoopStatsdClient drops every metric.
type NoopStatsdClient struct{}

func (NoopStatsdClient) Incr(string, []string, float64) error { return nil }
func (NoopStatsdClient) Flush() error                         { return nil }
func (NoopStatsdClient) Close() error                         { return nil }
