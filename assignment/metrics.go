// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package assignment

const (
	metricAssignment        = "ffe.assignment.count"
	metricAssignmentDefault = "ffe.assignment.default"
	metricAssignmentError   = "ffe.assignment.error"
	metricBanditAction      = "ffe.bandit.action.count"
	metricBanditFallback    = "ffe.bandit.selection_fallback"
	metricLogError          = "ffe.log.error"
)

// Reasons attached to ffe.assignment.default and ffe.assignment.error.
const (
	reasonNotInitialized    = "not_initialized"
	reasonFlagNotFound      = "flag_not_found"
	reasonFlagDisabled      = "flag_disabled"
	reasonUnassigned        = "unassigned"
	reasonValueTypeMismatch = "value_type_mismatch"
	reasonTypeMismatch      = "type_mismatch"
	reasonPanic             = "panic"
)

func (c *Client) incr(name, flagKey string, extraTags ...string) {
	tags := append([]string{"flag:" + flagKey}, extraTags...)
	_ = c.cfg.statsd.Incr(name, tags, 1)
}
