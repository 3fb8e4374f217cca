// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DataDog/dd-ffe-go/internal/log"
)

func TestAgentURLFromEnv(t *testing.T) {
	defer log.UseLogger(log.DiscardLogger{})()

	for _, tt := range []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "default", want: "http://localhost:8126"},
		{name: "http", env: map[string]string{"DD_TRACE_AGENT_URL": "http://custom:1234"}, want: "http://custom:1234"},
		{name: "https", env: map[string]string{"DD_TRACE_AGENT_URL": "https://custom:1234"}, want: "https://custom:1234"},
		{name: "protocol", env: map[string]string{"DD_TRACE_AGENT_URL": "bad://custom:1234"}, want: "http://localhost:8126"},
		{name: "invalid", env: map[string]string{"DD_TRACE_AGENT_URL": "http://localhost%+o:8126"}, want: "http://localhost:8126"},
		{name: "host", env: map[string]string{"DD_AGENT_HOST": "agent"}, want: "http://agent:8126"},
		{name: "host-port", env: map[string]string{"DD_AGENT_HOST": "agent", "DD_TRACE_AGENT_PORT": "9000"}, want: "http://agent:9000"},
		{name: "ipv6", env: map[string]string{"DD_AGENT_HOST": "::1"}, want: "http://[::1]:8126"},
		{
			name: "url-wins",
			env:  map[string]string{"DD_TRACE_AGENT_URL": "http://custom:1234", "DD_AGENT_HOST": "agent"},
			want: "http://custom:1234",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"DD_TRACE_AGENT_URL", "DD_AGENT_HOST", "DD_TRACE_AGENT_PORT"} {
				t.Setenv(k, tt.env[k])
			}
			assert.Equal(t, tt.want, AgentURLFromEnv().String())
		})
	}
}
