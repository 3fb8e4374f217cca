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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DataDog/dd-ffe-go/assignment"
	"github.com/DataDog/dd-ffe-go/flageval"
)

type assignResult struct {
	Flag    string `json:"flag"`
	Subject string `json:"subject"`
	Value   any    `json:"value"`
}

func newAssignCmd(v *viper.Viper) *cobra.Command {
	var (
		flagKey    string
		subjectKey string
		typ        string
		def        string
		attrs      []string
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a flag variation to a subject",
		RunE: func(cmd *cobra.Command, _ []string) error {
			attributes, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			s, err := newSession(cmd.Context(), cmd, v, true)
			if err != nil {
				return err
			}
			defer s.Close()

			value, err := assign(s.client, flageval.VariationType(strings.ToUpper(typ)), flagKey, subjectKey, attributes, def)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(assignResult{Flag: flagKey, Subject: subjectKey, Value: value})
		},
	}
	f := cmd.Flags()
	f.StringVar(&flagKey, "flag", "", "flag key")
	f.StringVar(&subjectKey, "subject", "", "subject key")
	f.StringVar(&typ, "type", string(flageval.VariationTypeString), "variation type (STRING, INTEGER, NUMERIC, BOOLEAN, JSON)")
	f.StringVar(&def, "default", "", "default value")
	f.StringArrayVar(&attrs, "attr", nil, "subject attribute as key=value, repeatable")
	_ = cmd.MarkFlagRequired("flag")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// assign calls the getter matching typ, parsing def into its type. An empty
// default is the type's zero value.
func assign(c *assignment.Client, typ flageval.VariationType, flagKey, subjectKey string, attrs map[string]any, def string) (any, error) {
	switch typ {
	case flageval.VariationTypeString:
		return c.GetStringAssignment(flagKey, subjectKey, attrs, def)
	case flageval.VariationTypeInteger:
		var d int64
		if def != "" {
			var err error
			if d, err = strconv.ParseInt(def, 10, 64); err != nil {
				return nil, fmt.Errorf("invalid integer default: %w", err)
			}
		}
		return c.GetIntegerAssignment(flagKey, subjectKey, attrs, d)
	case flageval.VariationTypeNumeric:
		var d float64
		if def != "" {
			var err error
			if d, err = strconv.ParseFloat(def, 64); err != nil {
				return nil, fmt.Errorf("invalid numeric default: %w", err)
			}
		}
		return c.GetNumericAssignment(flagKey, subjectKey, attrs, d)
	case flageval.VariationTypeBoolean:
		var d bool
		if def != "" {
			var err error
			if d, err = strconv.ParseBool(def); err != nil {
				return nil, fmt.Errorf("invalid boolean default: %w", err)
			}
		}
		return c.GetBooleanAssignment(flagKey, subjectKey, attrs, d)
	case flageval.VariationTypeJSON:
		var d any
		if def != "" {
			if err := json.Unmarshal([]byte(def), &d); err != nil {
				return nil, fmt.Errorf("invalid JSON default: %w", err)
			}
		}
		return c.GetJSONAssignment(flagKey, subjectKey, attrs, d)
	}
	return nil, fmt.Errorf("unknown variation type %q", typ)
}
