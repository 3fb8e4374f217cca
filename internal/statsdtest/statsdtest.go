// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

// Package statsdtest provides a recording StatsdClient for tests.
package statsdtest

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/DataDog/dd-ffe-go/internal"
	"github.com/stretchr/testify/assert"
)

var _ internal.StatsdClient = &TestStatsdClient{}

// TestStatsdClient records every metric it receives.
type TestStatsdClient struct {
	mu      sync.RWMutex
	calls   []TestStatsdCall
	counts  map[string]int64
	closed  bool
	flushed int
}

// TestStatsdCall is a single recorded metric submission.
type TestStatsdCall struct {
	name   string
	intVal int64
	tags   []string
	rate   float64
}

func (t TestStatsdCall) Name() string   { return t.name }
func (t TestStatsdCall) Tags() []string { return t.tags }
func (t TestStatsdCall) IntVal() int64  { return t.intVal }

func (tg *TestStatsdClient) Incr(name string, tags []string, rate float64) error {
	return tg.addMetric(1, TestStatsdCall{name: name, intVal: 1, tags: tags, rate: rate})
}

func (tg *TestStatsdClient) addMetric(count int64, c TestStatsdCall) error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	c.tags = slices.Clone(c.tags)
	tg.calls = append(tg.calls, c)
	if tg.counts == nil {
		tg.counts = make(map[string]int64)
	}
	tg.counts[c.name] += count
	return nil
}

func (tg *TestStatsdClient) Flush() error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.flushed++
	return nil
}

func (tg *TestStatsdClient) Close() error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.closed = true
	return nil
}

// GetCallsByName returns the recorded calls with the provided name.
func (tg *TestStatsdClient) GetCallsByName(name string) (calls []TestStatsdCall) {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	for _, c := range tg.calls {
		if c.name == name {
			calls = append(calls, c)
		}
	}
	return calls
}

// CountCallsByTag sums the int values of the calls carrying tag.
func (tg *TestStatsdClient) CountCallsByTag(calls []TestStatsdCall, tag string) int64 {
	var count int64
	for _, c := range calls {
		if slices.Contains(c.tags, tag) {
			count += c.intVal
		}
	}
	return count
}

// Counts returns the number of Incr calls per metric name.
func (tg *TestStatsdClient) Counts() map[string]int64 {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	c := make(map[string]int64, len(tg.counts))
	for key, value := range tg.counts {
		c[key] = value
	}
	return c
}

func (tg *TestStatsdClient) Reset() {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.calls = tg.calls[:0]
	tg.counts = make(map[string]int64)
}

// Wait blocks until n metrics have been reported or until duration d passes.
func (tg *TestStatsdClient) Wait(asserts *assert.Assertions, n int, d time.Duration) error {
	c := func() bool {
		tg.mu.RLock()
		defer tg.mu.RUnlock()
		return len(tg.calls) >= n
	}
	if !asserts.Eventually(c, d, 10*time.Millisecond) {
		return fmt.Errorf("timed out after waiting %s for %d metrics", d, n)
	}
	return nil
}

func (tg *TestStatsdClient) Closed() bool {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	return tg.closed
}

func (tg *TestStatsdClient) Flushed() int {
	tg.mu.RLock()
	defer tg.mu.RUnlock()
	return tg.flushed
}
