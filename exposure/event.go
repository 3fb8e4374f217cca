// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

// Package exposure defines the assignment and bandit events emitted by the
// client and the loggers that deliver them.
package exposure

import (
	"encoding/json"
	"time"
)

// MetaData identifies the SDK that produced an event.
type MetaData struct {
	SDKLanguage string `json:"sdkLanguage"`
	SDKVersion  string `json:"sdkVersion"`
}

// AssignmentEvent records that a subject was assigned a flag variation.
type AssignmentEvent struct {
	Allocation        string
	Experiment        string
	FeatureFlag       string
	Variation         string
	Subject           string
	Timestamp         time.Time
	SubjectAttributes map[string]any
	// ExtraLogging is merged into the top level of the encoded event.
	ExtraLogging map[string]string
	MetaData     MetaData
}

// ExperimentKey returns the experiment identifier of a flag allocation.
func ExperimentKey(flagKey, allocationKey string) string {
	return flagKey + "-" + allocationKey
}

// MarshalJSON encodes the event with its extra logging fields flattened
// into the top level object. Extra fields never override the standard ones.
func (e AssignmentEvent) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.ExtraLogging)+8)
	for k, v := range e.ExtraLogging {
		m[k] = v
	}
	attrs := e.SubjectAttributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	m["allocation"] = e.Allocation
	m["experiment"] = e.Experiment
	m["featureFlag"] = e.FeatureFlag
	m["variation"] = e.Variation
	m["subject"] = e.Subject
	m["timestamp"] = formatTimestamp(e.Timestamp)
	m["subjectAttributes"] = attrs
	m["metaData"] = e.MetaData
	return json.Marshal(m)
}

// BanditEvent records the action a bandit selected for a subject.
type BanditEvent struct {
	FlagKey                      string             `json:"flagKey"`
	BanditKey                    string             `json:"banditKey"`
	Subject                      string             `json:"subject"`
	Action                       string             `json:"action"`
	ActionProbability            float64            `json:"actionProbability"`
	OptimalityGap                float64            `json:"optimalityGap"`
	ModelVersion                 string             `json:"modelVersion"`
	Timestamp                    time.Time          `json:"-"`
	SubjectNumericAttributes     map[string]float64 `json:"subjectNumericAttributes"`
	SubjectCategoricalAttributes map[string]string  `json:"subjectCategoricalAttributes"`
	ActionNumericAttributes      map[string]float64 `json:"actionNumericAttributes"`
	ActionCategoricalAttributes  map[string]string  `json:"actionCategoricalAttributes"`
	MetaData                     MetaData           `json:"metaData"`
}

// MarshalJSON encodes the event with an ISO-8601 UTC timestamp.
func (e BanditEvent) MarshalJSON() ([]byte, error) {
	type plain BanditEvent
	return json.Marshal(struct {
		plain
		Timestamp string `json:"timestamp"`
	}{
		plain:     plain(e),
		Timestamp: formatTimestamp(e.Timestamp),
	})
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
