// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

// Package rctest provides a fake Datadog Agent serving Remote Config files.
package rctest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	rc "github.com/DataDog/datadog-agent/pkg/remoteconfig/state"
)

// Agent answers /v0.7/config with the files set on it. Every change bumps
// the targets version.
type Agent struct {
	*httptest.Server

	mu       sync.Mutex
	version  int64
	files    map[string]agentFile
	requests []Request
}

type agentFile struct {
	data    []byte
	version uint64
}

// Request is the part of a client request the tests look at.
type Request struct {
	Products       []string
	Capabilities   []byte
	TargetsVersion uint64
	BackendState   []byte
	ConfigStates   []ConfigState
	CachedPaths    []string
	HasError       bool
	Error          string
}

// ConfigState is the apply state a client reports for one config.
type ConfigState struct {
	ID         string        `json:"id"`
	Product    string        `json:"product"`
	Version    uint64        `json:"version"`
	ApplyState rc.ApplyState `json:"apply_state"`
	ApplyError string        `json:"apply_error"`
}

// NewAgent starts an Agent closed at the end of the test.
func NewAgent(t *testing.T) *Agent {
	t.Helper()
	a := &Agent{files: map[string]agentFile{}}
	a.Server = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.Close)
	return a
}

// Set adds or replaces the file at path.
func (a *Agent) Set(path string, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.version++
	a.files[path] = agentFile{data: data, version: uint64(a.version)}
}

// Remove drops the file at path.
func (a *Agent) Remove(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.version++
	delete(a.files, path)
}

// Requests returns the requests received so far.
func (a *Agent) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.requests)
}

// LastRequest returns the latest request, or the zero Request.
func (a *Agent) LastRequest() Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return Request{}
	}
	return a.requests[len(a.requests)-1]
}

type request struct {
	Client struct {
		Products     []string `json:"products"`
		Capabilities []byte   `json:"capabilities"`
		State        struct {
			TargetsVersion     uint64        `json:"targets_version"`
			BackendClientState []byte        `json:"backend_client_state"`
			ConfigStates       []ConfigState `json:"config_states"`
			HasError           bool          `json:"has_error"`
			Error              string        `json:"error"`
		} `json:"state"`
	} `json:"client"`
	CachedTargetFiles []struct {
		Path string `json:"path"`
	} `json:"cached_target_files"`
}

type targetFile struct {
	Path string `json:"path"`
	Raw  []byte `json:"raw"`
}

type response struct {
	Targets       []byte       `json:"targets"`
	TargetFiles   []targetFile `json:"target_files"`
	ClientConfigs []string     `json:"client_configs"`
}

func (a *Agent) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v0.7/config" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	rec := Request{
		Products:       req.Client.Products,
		Capabilities:   req.Client.Capabilities,
		TargetsVersion: req.Client.State.TargetsVersion,
		BackendState:   req.Client.State.BackendClientState,
		ConfigStates:   req.Client.State.ConfigStates,
		HasError:       req.Client.State.HasError,
		Error:          req.Client.State.Error,
	}
	for _, f := range req.CachedTargetFiles {
		rec.CachedPaths = append(rec.CachedPaths, f.Path)
	}
	a.requests = append(a.requests, rec)

	if a.version == 0 || rec.TargetsVersion == uint64(a.version) {
		w.Write([]byte(`{}`))
		return
	}
	targets := map[string]any{}
	resp := response{ClientConfigs: []string{}}
	for _, path := range slices.Sorted(maps.Keys(a.files)) {
		f := a.files[path]
		sum := sha256.Sum256(f.data)
		targets[path] = map[string]any{
			"length": len(f.data),
			"hashes": map[string]string{"sha256": hex.EncodeToString(sum[:])},
			"custom": map[string]any{"v": f.version},
		}
		resp.TargetFiles = append(resp.TargetFiles, targetFile{Path: path, Raw: f.data})
		resp.ClientConfigs = append(resp.ClientConfigs, path)
	}
	signed, err := json.Marshal(map[string]any{
		"signed": map[string]any{
			"version": a.version,
			"custom":  map[string]any{"opaque_backend_state": []byte(fmt.Sprintf("state-%d", a.version))},
			"targets": targets,
		},
		"signatures": []any{},
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp.Targets = signed
	json.NewEncoder(w).Encode(resp)
}
