// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/dd-ffe-go/configstore"
	"github.com/DataDog/dd-ffe-go/internal/remoteconfig/rctest"
	"github.com/DataDog/dd-ffe-go/poller"
)

var (
	wantFlags   = []string{"banner-bandit-flag", "kill-switch", "numeric-flag"}
	wantBandits = []string{"banner_bandit"}
)

// syncBuffer is a bytes.Buffer safe for a concurrent writer and reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func readReports(t *testing.T, out string) []pollReport {
	t.Helper()
	var reports []pollReport
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var r pollReport
		require.NoError(t, dec.Decode(&r))
		reports = append(reports, r)
	}
	return reports
}

func readFile(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	return data
}

func TestPollCmd(t *testing.T) {
	flags := readFile(t, "testdata/flags-v1.json")
	bandits := readFile(t, "testdata/bandits-v1.json")

	t.Run("rejected after first configuration", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case poller.FlagsEndpoint:
				if hits.Add(1) > 1 {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Write(flags)
			case poller.BanditsEndpoint:
				w.Write(bandits)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer srv.Close()

		out, _, err := run(t, "poll", "--base-url", srv.URL, "--interval", "50ms", "--jitter", "0")
		assert.ErrorContains(t, err, "configuration server rejected the API key")
		assert.EqualValues(t, 2, hits.Load())
		reports := readReports(t, out)
		require.Len(t, reports, 1)
		assert.Equal(t, wantFlags, reports[0].Flags)
		assert.Equal(t, wantBandits, reports[0].Bandits)
		assert.False(t, reports[0].UpdatedAt.IsZero())
	})

	t.Run("rejected immediately", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		out, _, err := run(t, "poll", "--base-url", srv.URL, "--interval", "50ms", "--jitter", "0")
		assert.ErrorContains(t, err, "configuration server rejected the API key")
		assert.Empty(t, out)
	})

	t.Run("unrecoverable error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, _, err := run(t, "poll", "--base-url", srv.URL, "--interval", "50ms", "--jitter", "0")
		assert.ErrorContains(t, err, "polling stopped after an unrecoverable error")
	})
}

func TestPollCmdRemoteConfig(t *testing.T) {
	const flagsPath = "datadog/2/FFE_FLAGS/ufc/config"
	a := rctest.NewAgent(t)
	a.Set("datadog/2/FFE_BANDITS/models/config", readFile(t, "testdata/bandits-v1.json"))
	a.Set(flagsPath, readFile(t, "testdata/flags-v1.json"))

	var out syncBuffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"poll", "--remote-config", "--agent-url", a.URL, "--interval", "10ms"})
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return strings.Count(out.String(), "\n") == 1 }, 2*time.Second, 5*time.Millisecond)
	first := readReports(t, out.String())[0]
	assert.Equal(t, wantFlags, first.Flags)
	assert.Equal(t, wantBandits, first.Bandits)

	a.Remove(flagsPath)
	require.Eventually(t, func() bool { return strings.Count(out.String(), "\n") == 2 }, 2*time.Second, 5*time.Millisecond)
	second := readReports(t, out.String())[1]
	assert.Empty(t, second.Flags)
	assert.Equal(t, wantBandits, second.Bandits)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not return after cancellation")
	}
	assert.Len(t, a.Requests()[0].Products, 2)
}

func TestReportChanges(t *testing.T) {
	s := configstore.NewStore()
	var out bytes.Buffer
	done := make(chan struct{})
	errc := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		errc <- reportChanges(context.Background(), &out, s, done, func() error { return io.ErrUnexpectedEOF })
		close(stopped)
	}()

	_, err := s.ApplyBandits(readFile(t, "testdata/bandits-v1.json"))
	require.NoError(t, err)
	_, err = s.ApplyFlags(readFile(t, "testdata/flags-v1.json"))
	require.NoError(t, err)
	close(done)
	<-stopped

	assert.ErrorIs(t, <-errc, io.ErrUnexpectedEOF)
	reports := readReports(t, out.String())
	require.NotEmpty(t, reports, "the final snapshot is reported before returning")
	last := reports[len(reports)-1]
	assert.Equal(t, wantFlags, last.Flags)
	assert.Equal(t, wantBandits, last.Bandits)
	for _, r := range reports {
		assert.NotEmpty(t, r.Flags, "uninitialized snapshots are not reported")
	}
}
