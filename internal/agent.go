// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package internal

import (
	"net"
	"net/url"
	"os"

	"github.com/DataDog/dd-ffe-go/internal/log"
)

const (
	// DefaultAgentHost is the host of the Datadog Agent when none is configured.
	DefaultAgentHost = "localhost"
	// DefaultAgentPort is the trace port of the Datadog Agent when none is configured.
	DefaultAgentPort = "8126"
)

// AgentURLFromEnv resolves the Datadog Agent base URL. DD_TRACE_AGENT_URL
// wins when it is a valid http or https URL, otherwise the URL is built from
// DD_AGENT_HOST and DD_TRACE_AGENT_PORT.
func AgentURLFromEnv() *url.URL {
	if v := os.Getenv("DD_TRACE_AGENT_URL"); v != "" {
		u, err := url.Parse(v)
		switch {
		case err != nil:
			log.Warn("Failed to parse DD_TRACE_AGENT_URL: %v", err)
		case u.Scheme != "http" && u.Scheme != "https":
			log.Warn("Unsupported protocol %q in Agent URL %q. Must be one of: http, https", u.Scheme, v)
		default:
			return u
		}
	}
	host := os.Getenv("DD_AGENT_HOST")
	if host == "" {
		host = DefaultAgentHost
	}
	port := os.Getenv("DD_TRACE_AGENT_PORT")
	if port == "" {
		port = DefaultAgentPort
	}
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, port),
	}
}
