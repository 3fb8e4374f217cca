// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

// Package configstore holds the flag and bandit configuration evaluated by
// the assignment client.
package configstore

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/DataDog/dd-ffe-go/flageval"
	"github.com/DataDog/dd-ffe-go/internal/log"
)

// Snapshot is an immutable view of the configuration. It is replaced as a
// whole on every update and must not be modified.
type Snapshot struct {
	Flags            map[string]*flageval.Flag
	Bandits          map[string]*flageval.Bandit
	BanditReferences map[string]BanditReference
	Environment      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

var emptySnapshot = &Snapshot{
	Flags:            map[string]*flageval.Flag{},
	Bandits:          map[string]*flageval.Bandit{},
	BanditReferences: map[string]BanditReference{},
}

// Store guards the current Snapshot. Readers never block each other and
// always observe a complete snapshot.
type Store struct {
	mu          sync.RWMutex
	snap        *Snapshot
	initialized bool
	changed     chan struct{}
}

// NewStore returns an empty, uninitialized Store.
func NewStore() *Store {
	return &Store{snap: emptySnapshot, changed: make(chan struct{})}
}

// Changed returns a channel closed on the next snapshot replacement.
func (s *Store) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// swap installs next and wakes the Changed waiters. s.mu must be held.
func (s *Store) swap(next *Snapshot) {
	s.snap = next
	close(s.changed)
	s.changed = make(chan struct{})
}

// Snapshot returns the current configuration.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// GetFlag returns the flag named key.
func (s *Store) GetFlag(key string) (*flageval.Flag, bool) {
	f, ok := s.Snapshot().Flags[key]
	return f, ok
}

// GetBandit returns the bandit named key.
func (s *Store) GetBandit(key string) (*flageval.Bandit, bool) {
	b, ok := s.Snapshot().Bandits[key]
	return b, ok
}

// FlagKeys returns the sorted keys of every configured flag.
func (s *Store) FlagKeys() []string {
	return slices.Sorted(maps.Keys(s.Snapshot().Flags))
}

// BanditKeys returns the sorted keys of every configured bandit.
func (s *Store) BanditKeys() []string {
	return slices.Sorted(maps.Keys(s.Snapshot().Bandits))
}

// IsInitialized reports whether a flag configuration was ever stored.
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// SetFlags replaces the flags, keeping the current bandits.
func (s *Store) SetFlags(cfg *FlagsConfiguration) {
	s.Update(cfg, nil)
}

// SetBandits replaces the bandits, keeping the current flags.
func (s *Store) SetBandits(cfg *BanditsConfiguration) {
	s.Update(nil, cfg)
}

// Update swaps flags and bandits in a single step. A nil argument keeps the
// corresponding part of the current snapshot.
func (s *Store) Update(flags *FlagsConfiguration, bandits *BanditsConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.snap
	next.UpdatedAt = time.Now()
	if flags != nil {
		next.Flags = nonNil(flags.Flags)
		next.BanditReferences = nonNil(flags.BanditReferences)
		next.Environment = flags.Environment.Name
		next.CreatedAt = flags.CreatedAt
		s.initialized = true
	}
	if bandits != nil {
		next.Bandits = nonNil(bandits.Bandits)
	}
	s.swap(&next)
}

// Clear removes every flag and bandit. The store stays initialized.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *emptySnapshot
	next.UpdatedAt = time.Now()
	s.swap(&next)
}

// ApplyFlags parses data and stores the result. Partially invalid
// configurations are stored with the invalid flags dropped.
func (s *Store) ApplyFlags(data []byte) (*FlagsConfiguration, error) {
	cfg, err := ParseFlags(data)
	if cfg == nil {
		return nil, err
	}
	if err != nil {
		log.Warn("configstore: dropped invalid flags: %v", err)
	}
	s.SetFlags(cfg)
	log.Debug("configstore: stored %d flags", len(cfg.Flags))
	return cfg, nil
}

// ApplyBandits parses data and stores the result. Partially invalid
// configurations are stored with the invalid bandits dropped.
func (s *Store) ApplyBandits(data []byte) (*BanditsConfiguration, error) {
	cfg, err := ParseBandits(data)
	if cfg == nil {
		return nil, err
	}
	if err != nil {
		log.Warn("configstore: dropped invalid bandits: %v", err)
	}
	s.SetBandits(cfg)
	log.Debug("configstore: stored %d bandits", len(cfg.Bandits))
	return cfg, nil
}

func nonNil[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
