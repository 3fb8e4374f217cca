// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DataDog/dd-ffe-go/flageval"
)

type banditResult struct {
	Flag      string  `json:"flag"`
	Subject   string  `json:"subject"`
	Variation string  `json:"variation"`
	Action    *string `json:"action"`
}

func newBanditCmd(v *viper.Viper) *cobra.Command {
	var (
		flagKey    string
		subjectKey string
		def        string
		attrs      []string
		actions    string
	)
	cmd := &cobra.Command{
		Use:   "bandit",
		Short: "Select a bandit action for a subject",
		Example: `  ffe-assign bandit --flags-file flags.json --bandits-file bandits.json \
    --flag banner-bandit-flag --subject alice --attr age=30 \
    --actions '{"nike": {"brand_affinity": 0.4}, "adidas": {"loyalty_tier": "gold"}}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			attributes, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			rawActions, err := parseActions(actions)
			if err != nil {
				return err
			}
			s, err := newSession(cmd.Context(), cmd, v, true)
			if err != nil {
				return err
			}
			defer s.Close()

			contexts := make(map[string]flageval.ContextAttributes, len(rawActions))
			for k, a := range rawActions {
				contexts[k] = flageval.NewContextAttributes(a)
			}
			res, err := s.client.GetBanditAction(flagKey, subjectKey, flageval.NewContextAttributes(attributes), contexts, def)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(banditResult{
				Flag:      flagKey,
				Subject:   subjectKey,
				Variation: res.Variation,
				Action:    res.Action,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&flagKey, "flag", "", "flag key")
	f.StringVar(&subjectKey, "subject", "", "subject key")
	f.StringVar(&def, "default", "", "default variation")
	f.StringArrayVar(&attrs, "attr", nil, "subject attribute as key=value, repeatable")
	f.StringVar(&actions, "actions", "", "JSON object mapping each action to its attributes")
	_ = cmd.MarkFlagRequired("flag")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
