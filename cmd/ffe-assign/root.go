// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DataDog/dd-ffe-go/assignment"
	"github.com/DataDog/dd-ffe-go/configstore"
	"github.com/DataDog/dd-ffe-go/exposure"
	"github.com/DataDog/dd-ffe-go/internal"
	"github.com/DataDog/dd-ffe-go/internal/log"
	"github.com/DataDog/dd-ffe-go/poller"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FFE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var undo func()
	root := &cobra.Command{
		Use:          "ffe-assign",
		Short:        "Evaluate feature flags and contextual bandits",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if f := v.GetString("config"); f != "" {
				v.SetConfigFile(f)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config file: %w", err)
				}
			}
			l, err := newLogrusLogger(cmd.ErrOrStderr(), v.GetString("log-level"))
			if err != nil {
				return err
			}
			undo = log.UseLogger(l)
			if l.debug() {
				log.SetLevel(log.LevelDebug)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			log.Flush()
			if undo != nil {
				undo()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (json, yaml or toml)")
	pf.String("flags-file", "", "flags configuration file")
	pf.String("bandits-file", "", "bandits configuration file")
	pf.String("base-url", "", "configuration server base URL, used when no flags file is given")
	pf.String("api-key", "", "configuration server API key")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("statsd-addr", "", "DogStatsD address, metrics are disabled when empty")
	pf.Bool("graceful", true, "return defaults instead of errors when evaluation fails")
	pf.String("exposure-url", "", "endpoint receiving exposure events, events are printed to stderr when empty")
	_ = v.BindPFlags(pf)

	root.AddCommand(newAssignCmd(v), newBanditCmd(v), newPollCmd(v))
	return root
}

// session bundles the collaborators of a single command run.
type session struct {
	store  *configstore.Store
	client *assignment.Client
	statsd internal.StatsdClient
	writer *exposure.Writer
}

func newSession(ctx context.Context, cmd *cobra.Command, v *viper.Viper, load bool) (*session, error) {
	s := &session{
		store:  configstore.NewStore(),
		statsd: internal.NoopStatsdClient{},
	}
	if load {
		if err := loadConfiguration(ctx, v, s.store); err != nil {
			return nil, err
		}
	}
	if addr := v.GetString("statsd-addr"); addr != "" {
		sc, err := internal.NewStatsdClient(addr, []string{"service:ffe-assign"})
		if err != nil {
			return nil, fmt.Errorf("failed to create statsd client: %w", err)
		}
		s.statsd = sc
	}

	var sink exposure.Logger = newEventPrinter(cmd.ErrOrStderr())
	if u := v.GetString("exposure-url"); u != "" {
		s.writer = exposure.NewWriter(exposure.WriterConfig{URL: u})
		s.writer.Start()
		sink = s.writer
	}
	s.client = assignment.NewClient(s.store, exposure.NewCachingLogger(sink),
		assignment.WithGracefulMode(v.GetBool("graceful")),
		assignment.WithStatsdClient(s.statsd),
	)
	return s, nil
}

func (s *session) Close() {
	if s.writer != nil {
		s.writer.Stop()
	}
	_ = s.statsd.Flush()
	_ = s.statsd.Close()
}

func loadConfiguration(ctx context.Context, v *viper.Viper, store *configstore.Store) error {
	if path := v.GetString("flags-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := store.ApplyFlags(data); err != nil {
			return err
		}
		if path := v.GetString("bandits-file"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if _, err := store.ApplyBandits(data); err != nil {
				return err
			}
		}
		return nil
	}
	if base := v.GetString("base-url"); base != "" {
		r := poller.NewRequestor(base, poller.DefaultSDKParams(v.GetString("api-key")), store)
		return r.FetchAndStore(ctx)
	}
	return errors.New("one of --flags-file or --base-url is required")
}
