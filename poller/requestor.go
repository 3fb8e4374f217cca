// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

// Package poller fetches flag and bandit configurations over HTTP and keeps
// a configstore.Store up to date.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/DataDog/dd-ffe-go/configstore"
	"github.com/DataDog/dd-ffe-go/internal/log"
	"github.com/DataDog/dd-ffe-go/internal/version"
)

const (
	// FlagsEndpoint serves the flags configuration.
	FlagsEndpoint = "/flag-config/v1/config"
	// BanditsEndpoint serves the bandit models.
	BanditsEndpoint = "/flag-config/v1/bandits"

	defaultRequestTimeout = 2 * time.Second
	defaultRetryMax       = 3
	defaultRetryWaitMin   = 1 * time.Second
	defaultRetryWaitMax   = 4 * time.Second
)

// SDKParams are sent as query parameters with every request.
type SDKParams struct {
	APIKey     string
	SDKName    string
	SDKVersion string
}

// DefaultSDKParams returns the parameters identifying this SDK.
func DefaultSDKParams(apiKey string) SDKParams {
	return SDKParams{
		APIKey:     apiKey,
		SDKName:    version.SDKLanguage,
		SDKVersion: version.Tag,
	}
}

func (p SDKParams) query() string {
	v := url.Values{}
	v.Set("apiKey", p.APIKey)
	v.Set("sdkName", p.SDKName)
	v.Set("sdkVersion", p.SDKVersion)
	return v.Encode()
}

// HTTPError is returned when the configuration server answers with a non-200
// status code.
type HTTPError struct {
	StatusCode int
	Resource   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d error while requesting resource %s", e.StatusCode, e.Resource)
}

// Recoverable reports whether a later request may succeed. Client errors are
// final except for timeouts and rate limiting.
func (e *HTTPError) Recoverable() bool {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// RequestorOption configures a Requestor.
type RequestorOption func(*retryablehttp.Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) RequestorOption {
	return func(rc *retryablehttp.Client) { rc.HTTPClient = c }
}

// WithRetry sets the maximum number of retries and the backoff bounds.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) RequestorOption {
	return func(rc *retryablehttp.Client) {
		rc.RetryMax = retryMax
		rc.RetryWaitMin = waitMin
		rc.RetryWaitMax = waitMax
	}
}

// Requestor downloads configurations and stores them.
type Requestor struct {
	baseURL      string
	params       SDKParams
	client       *retryablehttp.Client
	store        *configstore.Store
	unauthorized atomic.Bool
}

// NewRequestor returns a Requestor fetching from baseURL into store.
func NewRequestor(baseURL string, params SDKParams, store *configstore.Store, opts ...RequestorOption) *Requestor {
	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	c.RetryMax = defaultRetryMax
	c.RetryWaitMin = defaultRetryWaitMin
	c.RetryWaitMax = defaultRetryWaitMax
	c.Logger = retryLogger{}
	// hand the last response back so the status code can be inspected
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	for _, fn := range opts {
		fn(c)
	}
	return &Requestor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		params:  params,
		client:  c,
		store:   store,
	}
}

// Unauthorized reports whether the last response was a 401.
func (r *Requestor) Unauthorized() bool {
	return r.unauthorized.Load()
}

// FetchAndStore downloads the flags configuration and, when it references
// bandit models that are not loaded yet, the bandits. Both are stored in a
// single update.
func (r *Requestor) FetchAndStore(ctx context.Context) error {
	data, err := r.get(ctx, FlagsEndpoint)
	if err != nil {
		return err
	}
	flags, err := configstore.ParseFlags(data)
	if flags == nil {
		return fmt.Errorf("failed to parse flags configuration: %w", err)
	}
	if err != nil {
		log.Warn("poller: dropped invalid flags: %v", err)
	}

	var bandits *configstore.BanditsConfiguration
	if r.needsBandits(flags) {
		data, err := r.get(ctx, BanditsEndpoint)
		if err == nil {
			bandits, err = configstore.ParseBandits(data)
			if bandits != nil && err != nil {
				log.Warn("poller: dropped invalid bandits: %v", err)
				err = nil
			}
		}
		if err != nil {
			r.store.Update(flags, nil)
			return fmt.Errorf("failed to fetch bandits: %w", err)
		}
	}
	r.store.Update(flags, bandits)
	log.Debug("poller: stored %d flags", len(flags.Flags))
	return nil
}

// needsBandits reports whether a referenced bandit model version is missing
// from the store.
func (r *Requestor) needsBandits(flags *configstore.FlagsConfiguration) bool {
	for key, ref := range flags.BanditReferences {
		b, ok := r.store.GetBandit(key)
		if !ok || b.ModelVersion != ref.ModelVersion {
			return true
		}
	}
	return false
}

func (r *Requestor) get(ctx context.Context, resource string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+resource, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = r.params.query()

	resp, err := r.client.Do(req)
	if err != nil {
		// url.Error carries the query string, which holds the API key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("request to %s failed: %w", resource, err)
	}
	defer resp.Body.Close()

	r.unauthorized.Store(resp.StatusCode == http.StatusUnauthorized)
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Resource: resource}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", resource, err)
	}
	return data, nil
}

// retryLogger routes retryablehttp logs to the SDK logger.
type retryLogger struct{}

var _ retryablehttp.LeveledLogger = retryLogger{}

func (retryLogger) Error(msg string, kv ...interface{}) { log.Warn("poller: %s%s", msg, formatKV(kv)) }
func (retryLogger) Warn(msg string, kv ...interface{})  { log.Warn("poller: %s%s", msg, formatKV(kv)) }
func (retryLogger) Info(msg string, kv ...interface{})  { log.Debug("poller: %s%s", msg, formatKV(kv)) }
func (retryLogger) Debug(msg string, kv ...interface{}) { log.Debug("poller: %s%s", msg, formatKV(kv)) }

// formatKV renders key/value pairs, stripping query strings from URLs.
func formatKV(kv []interface{}) string {
	var sb strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		v := fmt.Sprint(kv[i+1])
		if k := fmt.Sprint(kv[i]); k == "url" {
			v, _, _ = strings.Cut(v, "?")
		}
		fmt.Fprintf(&sb, " %v=%s", kv[i], v)
	}
	return sb.String()
}
