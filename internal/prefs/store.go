// Package prefs owns the per-device notification preferences: one JSON
// blob, loaded lazily, merged shallowly on update, persisted on every
// mutation.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tadams95/4ex.ninja-sub006/internal/access"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
	"github.com/tadams95/4ex.ninja-sub006/pkg/storage"
)

// ChangeHandler observes every persisted preference mutation.
type ChangeHandler func(p models.Preferences)

// Store loads and persists Preferences through a storage backend.
type Store struct {
	storage       storage.Service
	thresholds    access.Thresholds
	minConfidence float64
	log           *logger.Logger

	mu        sync.Mutex
	cached    *models.Preferences
	listeners map[int]ChangeHandler
	nextID    int
}

// New creates a preference store on the given backend. minConfidence is
// the confidence floor applied before any user mutation.
func New(st storage.Service, th access.Thresholds, minConfidence float64, log *logger.Logger) *Store {
	return &Store{
		storage:       st,
		thresholds:    th,
		minConfidence: minConfidence,
		log:           log.With("prefs"),
		listeners:     make(map[int]ChangeHandler),
	}
}

func (s *Store) defaults() models.Preferences {
	p := models.DefaultPreferences()
	p.MinimumConfidence = s.minConfidence
	return p
}

// Get returns the current preferences, reading the blob on first use.
// A missing or corrupt blob falls back to defaults.
func (s *Store) Get(ctx context.Context) models.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) models.Preferences {
	if s.cached != nil {
		return *s.cached
	}

	p := s.defaults()
	b, err := s.storage.Get(ctx, models.PreferenceKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// first read, keep defaults
	case err != nil:
		s.log.Warn("preference read failed, using defaults", logger.Error(err))
	default:
		if uerr := json.Unmarshal(b, &p); uerr != nil {
			s.log.Warn("corrupt preference blob, using defaults", logger.Error(uerr))
			p = s.defaults()
		}
	}

	// Keep the stored tier consistent with the stored balance.
	if p.TokenBalance != nil {
		p.AccessTier = s.thresholds.TierForBalance(*p.TokenBalance)
	}
	s.cached = &p
	return p
}

// Update shallow-merges the partial update, persists the result, and
// notifies change listeners. The returned record is the merged state.
func (s *Store) Update(ctx context.Context, u models.PreferenceUpdate) (models.Preferences, error) {
	s.mu.Lock()
	current := s.loadLocked(ctx)
	if u.MinimumConfidence != nil && (*u.MinimumConfidence < 0 || *u.MinimumConfidence > 1) {
		s.mu.Unlock()
		return current, fmt.Errorf("minimum confidence %v outside [0,1]", *u.MinimumConfidence)
	}
	merged := u.Apply(current, s.thresholds)

	b, err := json.Marshal(merged)
	if err != nil {
		s.mu.Unlock()
		return current, fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.storage.Set(ctx, models.PreferenceKey, b); err != nil {
		s.mu.Unlock()
		return current, fmt.Errorf("persist preferences: %w", err)
	}
	s.cached = &merged
	handlers := s.snapshotListenersLocked()
	s.mu.Unlock()

	for _, h := range handlers {
		h(merged)
	}
	return merged, nil
}

// OnChange registers a mutation observer; the returned function removes it.
func (s *Store) OnChange(h ChangeHandler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = h
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) snapshotListenersLocked() []ChangeHandler {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]ChangeHandler, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}
