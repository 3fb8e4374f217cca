// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package exposure

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentEventJSON(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	e := AssignmentEvent{
		Allocation:        "rollout",
		Experiment:        ExperimentKey("checkout", "rollout"),
		FeatureFlag:       "checkout",
		Variation:         "on",
		Subject:           "alice",
		Timestamp:         ts,
		SubjectAttributes: map[string]any{"country": "FR", "age": 30.0},
		ExtraLogging:      map[string]string{"holdoutKey": "h1", "subject": "ignored"},
		MetaData:          MetaData{SDKLanguage: "go", SDKVersion: "v0.3.0"},
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "checkout-rollout", got["experiment"])
	assert.Equal(t, "alice", got["subject"])
	assert.Equal(t, "h1", got["holdoutKey"])
	assert.Equal(t, "2025-03-01T11:30:00Z", got["timestamp"])
	assert.Equal(t, map[string]any{"country": "FR", "age": 30.0}, got["subjectAttributes"])
	assert.Equal(t, map[string]any{"sdkLanguage": "go", "sdkVersion": "v0.3.0"}, got["metaData"])
	assert.NotContains(t, got, "ExtraLogging")
}

func TestAssignmentEventJSONEmptyAttributes(t *testing.T) {
	data, err := json.Marshal(AssignmentEvent{FeatureFlag: "f"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"subjectAttributes":{}`)
}

func TestBanditEventJSON(t *testing.T) {
	e := BanditEvent{
		FlagKey:                      "banner",
		BanditKey:                    "banner_bandit",
		Subject:                      "alice",
		Action:                       "nike",
		ActionProbability:            0.5,
		OptimalityGap:                0.25,
		ModelVersion:                 "v12",
		Timestamp:                    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		SubjectNumericAttributes:     map[string]float64{"age": 30},
		SubjectCategoricalAttributes: map[string]string{"country": "FR"},
		ActionNumericAttributes:      map[string]float64{"price": 10},
		ActionCategoricalAttributes:  map[string]string{},
		MetaData:                     MetaData{SDKLanguage: "go", SDKVersion: "v0.3.0"},
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "2025-03-01T12:00:00Z", got["timestamp"])
	assert.Equal(t, "nike", got["action"])
	assert.Equal(t, 0.5, got["actionProbability"])
	assert.Equal(t, "v12", got["modelVersion"])
	assert.Equal(t, map[string]any{"age": 30.0}, got["subjectNumericAttributes"])
	assert.Equal(t, map[string]any{"country": "FR"}, got["subjectCategoricalAttributes"])
	assert.NotContains(t, got, "Timestamp")
}
