// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package exposure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/DataDog/dd-ffe-go/internal"
	"github.com/DataDog/dd-ffe-go/internal/log"
)

const (
	// DefaultFlushInterval is the default interval between two flushes.
	DefaultFlushInterval = 1 * time.Second

	// Endpoint is the Agent EVP proxy path receiving the events.
	Endpoint = "/evp_proxy/v2/api/v2/exposures"

	evpSubdomainHeader = "X-Datadog-EVP-Subdomain"
	evpSubdomainValue  = "event-platform-intake"

	defaultHTTPTimeout = 5 * time.Second
)

// ServiceContext describes the service emitting the events.
type ServiceContext struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version,omitempty"`
	Env         string `json:"env,omitempty"`
}

// ServiceContextFromEnv builds a ServiceContext from DD_SERVICE, DD_VERSION
// and DD_ENV.
func ServiceContextFromEnv() ServiceContext {
	c := ServiceContext{
		ServiceName: os.Getenv("DD_SERVICE"),
		Version:     os.Getenv("DD_VERSION"),
		Env:         os.Getenv("DD_ENV"),
	}
	if c.ServiceName == "" {
		c.ServiceName = "unknown"
	}
	return c
}

type payload struct {
	Context       ServiceContext    `json:"context"`
	Assignments   []AssignmentEvent `json:"assignments"`
	BanditActions []BanditEvent     `json:"banditActions"`
}

// WriterConfig configures a Writer. Zero values select the defaults.
type WriterConfig struct {
	// URL is the full endpoint URL. Defaults to the Agent URL resolved from
	// the environment joined with Endpoint.
	URL           string
	FlushInterval time.Duration
	HTTPClient    *http.Client
	Context       *ServiceContext
}

type assignmentBufferKey struct {
	flagKey       string
	allocationKey string
	variationKey  string
	subjectKey    string
}

type banditBufferKey struct {
	flagKey    string
	banditKey  string
	actionKey  string
	subjectKey string
}

// Writer is a Logger buffering events in memory and posting them in batches.
// Identical events received within one flush interval are sent once.
type Writer struct {
	mu          sync.Mutex
	assignments map[assignmentBufferKey]AssignmentEvent
	bandits     map[banditBufferKey]BanditEvent
	stopped     bool

	flushInterval time.Duration
	httpClient    *http.Client
	url           string
	context       ServiceContext

	stopChan chan struct{}
	wg       sync.WaitGroup
}

var _ Logger = (*Writer)(nil)

// NewWriter returns a Writer configured with cfg. Call Start to flush
// periodically and Stop to flush the remaining events.
func NewWriter(cfg WriterConfig) *Writer {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if cfg.URL == "" {
		u := internal.AgentURLFromEnv()
		u.Path = Endpoint
		cfg.URL = u.String()
	}
	sc := ServiceContextFromEnv()
	if cfg.Context != nil {
		sc = *cfg.Context
	}
	return &Writer{
		assignments:   make(map[assignmentBufferKey]AssignmentEvent),
		bandits:       make(map[banditBufferKey]BanditEvent),
		flushInterval: cfg.FlushInterval,
		httpClient:    cfg.HTTPClient,
		url:           cfg.URL,
		context:       sc,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the periodic flushing of buffered events.
func (w *Writer) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Flush()
			case <-w.stopChan:
				return
			}
		}
	}()
}

// LogAssignment implements Logger.
func (w *Writer) LogAssignment(event AssignmentEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.assignments[assignmentBufferKey{
		flagKey:       event.FeatureFlag,
		allocationKey: event.Allocation,
		variationKey:  event.Variation,
		subjectKey:    event.Subject,
	}] = event
}

// LogBanditAction implements Logger.
func (w *Writer) LogBanditAction(event BanditEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.bandits[banditBufferKey{
		flagKey:    event.FlagKey,
		banditKey:  event.BanditKey,
		actionKey:  event.Action,
		subjectKey: event.Subject,
	}] = event
}

// Flush sends all buffered events.
func (w *Writer) Flush() {
	if err := w.flush(); err != nil {
		log.Error("exposure: failed to send events: %v", err)
	}
}

func (w *Writer) flush() error {
	w.mu.Lock()
	if len(w.assignments) == 0 && len(w.bandits) == 0 {
		w.mu.Unlock()
		return nil
	}
	p := payload{
		Context:       w.context,
		Assignments:   make([]AssignmentEvent, 0, len(w.assignments)),
		BanditActions: make([]BanditEvent, 0, len(w.bandits)),
	}
	for _, e := range w.assignments {
		p.Assignments = append(p.Assignments, e)
	}
	for _, e := range w.bandits {
		p.BanditActions = append(p.BanditActions, e)
	}
	w.assignments = make(map[assignmentBufferKey]AssignmentEvent)
	w.bandits = make(map[banditBufferKey]BanditEvent)
	w.mu.Unlock()

	if err := w.send(p); err != nil {
		return err
	}
	log.Debug("exposure: sent %d assignment and %d bandit events", len(p.Assignments), len(p.BanditActions))
	return nil
}

func (w *Writer) send(p payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(evpSubdomainHeader, evpSubdomainValue)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Stop ends periodic flushing and sends the remaining events. Events logged
// after Stop are dropped.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.Flush()
	log.Debug("exposure: writer stopped")
}
