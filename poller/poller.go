// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package poller

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/DataDog/dd-ffe-go/internal"
	"github.com/DataDog/dd-ffe-go/internal/log"
)

const (
	// DefaultInterval is the default time between two polls.
	DefaultInterval = 5 * time.Minute
	// DefaultJitter is the default upper bound of the random amount
	// subtracted from each interval.
	DefaultJitter = 30 * time.Second
)

// Fetcher is run on every poll.
type Fetcher interface {
	FetchAndStore(ctx context.Context) error
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithJitter sets the polling jitter.
func WithJitter(d time.Duration) Option {
	return func(p *Poller) { p.jitter = d }
}

// Poller runs a Fetcher immediately and then periodically.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	jitter   time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns a Poller for f. The interval and jitter default to the
// DD_FFE_POLL_INTERVAL and DD_FFE_POLL_JITTER environment variables.
func New(f Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  f,
		interval: internal.DurationEnv("DD_FFE_POLL_INTERVAL", DefaultInterval),
		jitter:   internal.DurationEnv("DD_FFE_POLL_JITTER", DefaultJitter),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, fn := range opts {
		fn(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.jitter < 0 {
		p.jitter = 0
	}
	if p.jitter > p.interval {
		p.jitter = p.interval
	}
	return p
}

// Start launches the polling goroutine. It returns immediately; use Done to
// wait for the poller to exit. Calling Start more than once has no effect.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.run(ctx)
}

// Stop ends polling and waits for the current fetch to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}

// Done is closed once the polling goroutine exits.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}
		if err := p.fetcher.FetchAndStore(ctx); err != nil {
			if !Recoverable(err) {
				log.Error("poller: stopping after unrecoverable error: %v", err)
				return
			}
			log.Warn("poller: failed to fetch configuration: %v", err)
		}
		t := time.NewTimer(p.nextWait())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-p.stop:
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// nextWait returns the interval minus a random jitter.
func (p *Poller) nextWait() time.Duration {
	if p.jitter <= 0 {
		return p.interval
	}
	return p.interval - rand.N(p.jitter)
}

// Recoverable reports whether polling should continue after err.
func Recoverable(err error) bool {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Recoverable()
	}
	return true
}
