// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package assignment

import "errors"

var (
	// ErrBlankFlagKey is returned when the flag key is empty.
	ErrBlankFlagKey = errors.New("assignment: no flag key provided")
	// ErrBlankSubjectKey is returned when the subject key is empty.
	ErrBlankSubjectKey = errors.New("assignment: no subject key provided")
	// ErrTypeMismatch is returned when the flag's declared variation type
	// differs from the requested one.
	ErrTypeMismatch = errors.New("assignment: variation type mismatch")
	// ErrEvaluation wraps failures raised while evaluating a flag or a
	// bandit when graceful mode is off.
	ErrEvaluation = errors.New("assignment: evaluation failed")
)
