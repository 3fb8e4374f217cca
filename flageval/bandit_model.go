// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package flageval

import "time"

// Bandit is a stored contextual bandit and its current model.
type Bandit struct {
	BanditKey    string          `json:"banditKey"`
	ModelName    string          `json:"modelName"`
	ModelVersion string          `json:"modelVersion"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	ModelData    BanditModelData `json:"modelData"`
}

// BanditModelData holds the parameters of a linear contextual bandit.
type BanditModelData struct {
	// Gamma controls exploration: larger values concentrate probability on
	// the best action.
	Gamma                  float64                       `json:"gamma"`
	DefaultActionScore     float64                       `json:"defaultActionScore"`
	ActionProbabilityFloor float64                       `json:"actionProbabilityFloor"`
	Coefficients           map[string]BanditCoefficients `json:"coefficients"`
}

// BanditCoefficients is the linear model of a single action.
type BanditCoefficients struct {
	ActionKey                      string                                  `json:"actionKey"`
	Intercept                      float64                                 `json:"intercept"`
	SubjectNumericCoefficients     []BanditNumericAttributeCoefficient     `json:"subjectNumericCoefficients"`
	SubjectCategoricalCoefficients []BanditCategoricalAttributeCoefficient `json:"subjectCategoricalCoefficients"`
	ActionNumericCoefficients      []BanditNumericAttributeCoefficient     `json:"actionNumericCoefficients"`
	ActionCategoricalCoefficients  []BanditCategoricalAttributeCoefficient `json:"actionCategoricalCoefficients"`
}

type BanditNumericAttributeCoefficient struct {
	AttributeKey            string  `json:"attributeKey"`
	Coefficient             float64 `json:"coefficient"`
	MissingValueCoefficient float64 `json:"missingValueCoefficient"`
}

type BanditCategoricalAttributeCoefficient struct {
	AttributeKey            string             `json:"attributeKey"`
	ValueCoefficients       map[string]float64 `json:"valueCoefficients"`
	MissingValueCoefficient float64            `json:"missingValueCoefficient"`
}
