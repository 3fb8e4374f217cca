// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package exposure

// Logger receives assignment and bandit events. Delivery is best effort
// and the client never retries on a logger's behalf. Implementations must
// be safe for concurrent use.
type Logger interface {
	LogAssignment(event AssignmentEvent)
	LogBanditAction(event BanditEvent)
}

// NoopLogger drops every event.
type NoopLogger struct{}

func (NoopLogger) LogAssignment(AssignmentEvent) {}
func (NoopLogger) LogBanditAction(BanditEvent)   {}
