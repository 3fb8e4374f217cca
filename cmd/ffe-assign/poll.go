// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DataDog/dd-ffe-go/configstore"
	"github.com/DataDog/dd-ffe-go/internal/remoteconfig"
	"github.com/DataDog/dd-ffe-go/poller"
)

type pollReport struct {
	UpdatedAt time.Time `json:"updatedAt"`
	Flags     []string  `json:"flags"`
	Bandits   []string  `json:"bandits"`
}

func newPollCmd(v *viper.Viper) *cobra.Command {
	var (
		interval time.Duration
		jitter   time.Duration
		remote   bool
		agentURL string
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Keep the configuration in sync and report every change",
		Long: "Keep the configuration in sync and print a JSON report every time it changes.\n" +
			"The configuration comes from the configuration server, or from the Datadog Agent\n" +
			"Remote Config products with --remote-config.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := v.GetString("base-url")
			if !remote && base == "" {
				return errors.New("--base-url is required")
			}
			ctx := cmd.Context()
			s, err := newSession(ctx, cmd, v, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if remote {
				cfg := remoteconfig.ClientConfig{AgentURL: agentURL}
				if cmd.Flags().Changed("interval") {
					cfg.PollInterval = interval
				}
				c := remoteconfig.NewClient(cfg)
				configstore.SubscribeRemoteConfig(c, s.store)
				c.Start(ctx)
				defer c.Stop()
				return reportChanges(ctx, cmd.OutOrStdout(), s.store, nil, nil)
			}

			r := poller.NewRequestor(base, poller.DefaultSDKParams(v.GetString("api-key")), s.store)
			p := poller.New(r, poller.WithInterval(interval), poller.WithJitter(jitter))
			p.Start(ctx)
			defer p.Stop()
			return reportChanges(ctx, cmd.OutOrStdout(), s.store, p.Done(), func() error {
				if r.Unauthorized() {
					return errors.New("configuration server rejected the API key")
				}
				return errors.New("polling stopped after an unrecoverable error")
			})
		},
	}
	f := cmd.Flags()
	f.DurationVar(&interval, "interval", poller.DefaultInterval, "polling interval")
	f.DurationVar(&jitter, "jitter", poller.DefaultJitter, "maximum random amount subtracted from each interval")
	f.BoolVar(&remote, "remote-config", false, "receive the configuration through the Datadog Agent Remote Config")
	f.StringVar(&agentURL, "agent-url", "", "Datadog Agent URL, resolved from DD_TRACE_AGENT_URL or DD_AGENT_HOST when empty")
	return cmd
}

// reportChanges writes a report for every new initialized snapshot of store
// until ctx is done or done is closed. On done, the latest snapshot is
// reported before returning stopped().
func reportChanges(ctx context.Context, w io.Writer, store *configstore.Store, done <-chan struct{}, stopped func() error) error {
	enc := json.NewEncoder(w)
	var last *configstore.Snapshot
	report := func() error {
		snap := store.Snapshot()
		if snap == last || !store.IsInitialized() {
			return nil
		}
		last = snap
		return enc.Encode(pollReport{
			UpdatedAt: snap.UpdatedAt,
			Flags:     slices.Sorted(maps.Keys(snap.Flags)),
			Bandits:   slices.Sorted(maps.Keys(snap.Bandits)),
		})
	}
	for {
		changed := store.Changed()
		if err := report(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			if err := report(); err != nil {
				return err
			}
			return stopped()
		case <-changed:
		}
	}
}
