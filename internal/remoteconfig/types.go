// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package remoteconfig

import rc "github.com/DataDog/datadog-agent/pkg/remoteconfig/state"

type clientData struct {
	State        *clientState  `json:"state,omitempty"`
	ClientTracer *clientTracer `json:"client_tracer,omitempty"`
	ID           string        `json:"id,omitempty"`
	Products     []string      `json:"products,omitempty"`
	Capabilities []byte        `json:"capabilities,omitempty"`
	IsTracer     bool          `json:"is_tracer,omitempty"`
}

type clientTracer struct {
	RuntimeID     string `json:"runtime_id,omitempty"`
	Language      string `json:"language,omitempty"`
	TracerVersion string `json:"tracer_version,omitempty"`
	Service       string `json:"service,omitempty"`
	Env           string `json:"env,omitempty"`
	AppVersion    string `json:"app_version,omitempty"`
}

type configState struct {
	ID         string        `json:"id,omitempty"`
	Product    string        `json:"product,omitempty"`
	ApplyError string        `json:"apply_error,omitempty"`
	Version    uint64        `json:"version,omitempty"`
	ApplyState rc.ApplyState `json:"apply_state,omitempty"`
}

type clientState struct {
	Error              string         `json:"error,omitempty"`
	ConfigStates       []*configState `json:"config_states"`
	BackendClientState []byte         `json:"backend_client_state,omitempty"`
	RootVersion        uint64         `json:"root_version"`
	TargetsVersion     uint64         `json:"targets_version"`
	HasError           bool           `json:"has_error,omitempty"`
}

type targetFileHash struct {
	Algorithm string `json:"algorithm,omitempty"`
	Hash      string `json:"hash,omitempty"`
}

type targetFileMeta struct {
	Path   string            `json:"path,omitempty"`
	Hashes []*targetFileHash `json:"hashes,omitempty"`
	Length int64             `json:"length,omitempty"`
}

type clientGetConfigsRequest struct {
	Client            *clientData       `json:"client,omitempty"`
	CachedTargetFiles []*targetFileMeta `json:"cached_target_files,omitempty"`
}

type clientGetConfigsResponse struct {
	Roots         [][]byte `json:"roots,omitempty"`
	Targets       []byte   `json:"targets,omitempty"`
	TargetFiles   []*file  `json:"target_files,omitempty"`
	ClientConfigs []string `json:"client_configs,omitempty"`
}

type file struct {
	Path string `json:"path,omitempty"`
	Raw  []byte `json:"raw,omitempty"`
}

// signedTargets is the TUF targets metadata listing every config file the
// agent knows about. Signatures are not verified.
type signedTargets struct {
	Signed targets `json:"signed"`
}

type targets struct {
	Custom  *targetsCustom        `json:"custom,omitempty"`
	Targets map[string]targetMeta `json:"targets"`
	Version int64                 `json:"version"`
}

type targetsCustom struct {
	OpaqueBackendState []byte `json:"opaque_backend_state,omitempty"`
}

// targetMeta describes one config file. Hashes are hex encoded.
type targetMeta struct {
	Custom *targetMetaCustom `json:"custom,omitempty"`
	Hashes map[string]string `json:"hashes"`
	Length int64             `json:"length"`
}

type targetMetaCustom struct {
	Version uint64 `json:"v"`
}
