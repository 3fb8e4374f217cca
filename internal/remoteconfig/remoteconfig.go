// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

// Package remoteconfig polls the Datadog Agent for Remote Config files and
// hands them to the callbacks subscribed to their product.
package remoteconfig

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math/big"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	rc "github.com/DataDog/datadog-agent/pkg/remoteconfig/state"
	"github.com/google/uuid"

	"github.com/DataDog/dd-ffe-go/internal"
	"github.com/DataDog/dd-ffe-go/internal/log"
	"github.com/DataDog/dd-ffe-go/internal/version"
)

// Callback processes the files of a product update and returns the apply
// status of each path.
type Callback func(u ProductUpdate) map[string]rc.ApplyStatus

// ProductUpdate maps file paths to raw file content. A nil content means
// the file was removed.
type ProductUpdate map[string][]byte

// Capability is a bit index set in the client capabilities.
type Capability uint

// FFEFlags is the capability to receive feature flag configurations.
const FFEFlags Capability = 46

// ClientConfig configures a Client.
type ClientConfig struct {
	// AgentURL is the base URL of the Datadog Agent.
	AgentURL string
	// HTTP is the client used to reach the agent.
	HTTP *http.Client
	// PollInterval is the time between two requests to the agent.
	PollInterval time.Duration
	// ServiceName, Env and AppVersion identify the application to the agent.
	ServiceName string
	Env         string
	AppVersion  string
}

// defaultPollSeconds is used when DD_REMOTE_CONFIG_POLL_INTERVAL_SECONDS is
// unset or not positive.
const defaultPollSeconds = 5

// DefaultClientConfig returns the configuration resolved from the environment.
func DefaultClientConfig() ClientConfig {
	secs := internal.IntEnv("DD_REMOTE_CONFIG_POLL_INTERVAL_SECONDS", defaultPollSeconds)
	if secs <= 0 {
		secs = defaultPollSeconds
	}
	return ClientConfig{
		AgentURL:     internal.AgentURLFromEnv().String(),
		HTTP:         &http.Client{Timeout: 10 * time.Second},
		PollInterval: time.Duration(secs) * time.Second,
		ServiceName:  os.Getenv("DD_SERVICE"),
		Env:          os.Getenv("DD_ENV"),
		AppVersion:   os.Getenv("DD_VERSION"),
	}
}

// configPath matches datadog/<org>/<product>/<id>/<name> and
// employee/<product>/<id>/<name>.
var configPath = regexp.MustCompile(`^(?:datadog/\d+|employee)/([^/]+)/([^/]+)/[^/]+$`)

// parsePath returns the product and config ID of a Remote Config path.
func parsePath(path string) (product, id string, err error) {
	m := configPath.FindStringSubmatch(path)
	if m == nil {
		return "", "", fmt.Errorf("config file path %q has wrong format", path)
	}
	return m[1], m[2], nil
}

// cachedFile is a config file the client acknowledged to the agent.
type cachedFile struct {
	product string
	id      string
	version uint64
	length  int64
	hashes  map[string]string
	status  rc.ApplyStatus
}

// A Client polls the agent and dispatches product updates to callbacks.
type Client struct {
	ClientConfig

	clientID  string
	runtimeID string
	endpoint  string

	mu                 sync.Mutex
	callbacks          map[string][]Callback
	capabilities       []Capability
	files              map[string]*cachedFile
	targetsVersion     int64
	opaqueBackendState []byte
	lastError          error

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewClient returns a Client for cfg. Zero fields take their value from
// DefaultClientConfig.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.AgentURL == "" {
		cfg.AgentURL = def.AgentURL
	}
	if cfg.HTTP == nil {
		cfg.HTTP = def.HTTP
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	return &Client{
		ClientConfig: cfg,
		clientID:     uuid.NewString(),
		runtimeID:    uuid.NewString(),
		endpoint:     strings.TrimSuffix(cfg.AgentURL, "/") + "/v0.7/config",
		callbacks:    map[string][]Callback{},
		files:        map[string]*cachedFile{},
		stop:         make(chan struct{}),
	}
}

// Subscribe registers cb for the updates of product and advertises caps to
// the agent.
func (c *Client) Subscribe(product string, cb Callback, caps ...Capability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[product] = append(c.callbacks[product], cb)
	for _, cp := range caps {
		if !slices.Contains(c.capabilities, cp) {
			c.capabilities = append(c.capabilities, cp)
		}
	}
}

// Start requests the agent right away and then every PollInterval until
// ctx is done or Stop is called. Calling Start more than once has no effect.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ticker := time.NewTicker(c.PollInterval)
			defer ticker.Stop()
			for {
				if err := c.updateState(ctx); err != nil {
					log.Debug("remoteconfig: %v", err)
				}
				select {
				case <-ctx.Done():
					return
				case <-c.stop:
					return
				case <-ticker.C:
				}
			}
		}()
	})
}

// Stop ends polling and waits for the poll loop to exit.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// updateState runs a single request to the agent and applies its response.
func (c *Client) updateState(ctx context.Context) error {
	body, err := c.newUpdateRequest()
	if err != nil {
		return fmt.Errorf("unexpected error while creating a new update request payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unexpected error while creating a new http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("http request error: response status code is not 200 (OK) but %s", http.StatusText(resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("http request error: could not read the response body: %w", err)
	}
	if s := string(bytes.TrimSpace(data)); s == "{}" || s == "null" {
		return nil
	}
	var update clientGetConfigsResponse
	if err := json.Unmarshal(data, &update); err != nil {
		return fmt.Errorf("http request error: could not parse the json response body: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = c.applyUpdate(&update)
	return c.lastError
}

// applyUpdate validates every file of the response before any callback
// runs. The caller holds c.mu.
func (c *Client) applyUpdate(u *clientGetConfigsResponse) error {
	if len(u.Targets) == 0 {
		return nil
	}
	var st signedTargets
	if err := json.Unmarshal(u.Targets, &st); err != nil {
		return fmt.Errorf("could not parse targets metadata: %w", err)
	}
	raw := make(map[string][]byte, len(u.TargetFiles))
	for _, f := range u.TargetFiles {
		raw[f.Path] = f.Raw
	}

	updates := map[string]ProductUpdate{}
	pending := map[string]*cachedFile{}
	active := make(map[string]struct{}, len(u.ClientConfigs))
	for _, path := range u.ClientConfigs {
		active[path] = struct{}{}
		product, id, err := parsePath(path)
		if err != nil {
			return err
		}
		if _, ok := c.callbacks[product]; !ok {
			continue
		}
		meta, ok := st.Signed.Targets[path]
		if !ok {
			return fmt.Errorf("missing targets metadata for %q", path)
		}
		if cf, ok := c.files[path]; ok && cf.hashes["sha256"] == meta.Hashes["sha256"] {
			continue
		}
		data, ok := raw[path]
		if !ok {
			return fmt.Errorf("missing config file %q", path)
		}
		if int64(len(data)) != meta.Length {
			return fmt.Errorf("config file %q has length %d, expected %d", path, len(data), meta.Length)
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != meta.Hashes["sha256"] {
			return fmt.Errorf("config file %q does not match its sha256 hash", path)
		}
		cf := &cachedFile{
			product: product,
			id:      id,
			length:  meta.Length,
			hashes:  maps.Clone(meta.Hashes),
			status:  rc.ApplyStatus{State: rc.ApplyStateUnacknowledged},
		}
		if meta.Custom != nil {
			cf.version = meta.Custom.Version
		}
		pending[path] = cf
		if updates[product] == nil {
			updates[product] = ProductUpdate{}
		}
		updates[product][path] = data
	}
	for path, cf := range c.files {
		if _, ok := active[path]; ok {
			continue
		}
		if updates[cf.product] == nil {
			updates[cf.product] = ProductUpdate{}
		}
		updates[cf.product][path] = nil
	}

	c.targetsVersion = st.Signed.Version
	if st.Signed.Custom != nil {
		c.opaqueBackendState = st.Signed.Custom.OpaqueBackendState
	}
	for path, cf := range pending {
		c.files[path] = cf
	}
	for _, product := range slices.Sorted(maps.Keys(updates)) {
		update := updates[product]
		for path, data := range update {
			if data == nil {
				delete(c.files, path)
			}
		}
		for _, cb := range c.callbacks[product] {
			for path, status := range cb(update) {
				if cf, ok := c.files[path]; ok {
					cf.status = status
				}
			}
		}
	}
	return nil
}

// newUpdateRequest encodes the client state reported to the agent.
func (c *Client) newUpdateRequest() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := slices.Sorted(maps.Keys(c.files))
	cached := make([]*targetFileMeta, 0, len(paths))
	for _, path := range paths {
		cf := c.files[path]
		hashes := make([]*targetFileHash, 0, len(cf.hashes))
		for _, alg := range slices.Sorted(maps.Keys(cf.hashes)) {
			hashes = append(hashes, &targetFileHash{Algorithm: alg, Hash: cf.hashes[alg]})
		}
		cached = append(cached, &targetFileMeta{Path: path, Length: cf.length, Hashes: hashes})
	}

	hasError := c.lastError != nil
	var errMsg string
	var states []*configState
	if hasError {
		errMsg = c.lastError.Error()
	} else {
		states = make([]*configState, 0, len(paths))
		for _, path := range paths {
			cf := c.files[path]
			states = append(states, &configState{
				ID:         cf.id,
				Version:    cf.version,
				Product:    cf.product,
				ApplyState: cf.status.State,
				ApplyError: cf.status.Error,
			})
		}
	}

	caps := big.NewInt(0)
	for _, i := range c.capabilities {
		caps.SetBit(caps, int(i), 1)
	}
	req := clientGetConfigsRequest{
		Client: &clientData{
			State: &clientState{
				RootVersion:        1,
				TargetsVersion:     uint64(c.targetsVersion),
				ConfigStates:       states,
				HasError:           hasError,
				Error:              errMsg,
				BackendClientState: c.opaqueBackendState,
			},
			ID:       c.clientID,
			Products: slices.Sorted(maps.Keys(c.callbacks)),
			IsTracer: true,
			ClientTracer: &clientTracer{
				RuntimeID:     c.runtimeID,
				Language:      version.SDKLanguage,
				TracerVersion: version.Tag,
				Service:       c.ServiceName,
				Env:           c.Env,
				AppVersion:    c.AppVersion,
			},
			Capabilities: caps.Bytes(),
		},
		CachedTargetFiles: cached,
	}
	return json.Marshal(&req)
}
