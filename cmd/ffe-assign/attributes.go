// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// parseAttributes parses key=value pairs. Numbers and booleans keep their
// type, anything else is a string.
func parseAttributes(pairs []string) (map[string]any, error) {
	attrs := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", p)
		}
		attrs[k] = parseScalar(v)
	}
	return attrs, nil
}

func parseScalar(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// parseActions decodes a JSON object mapping each action to its attributes.
func parseActions(data string) (map[string]map[string]any, error) {
	if data == "" {
		return nil, nil
	}
	var actions map[string]map[string]any
	if err := json.Unmarshal([]byte(data), &actions); err != nil {
		return nil, fmt.Errorf("invalid actions: %w", err)
	}
	return actions, nil
}
