// Package store persists analysis results.
//
// Backends:
//   - [MongoStore]: MongoDB, one document per package in the "analyses"
//     collection, for the consume worker
//   - [MemoryStore]: in-process storage for one-shot runs and tests
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matzehuels/pkganalyzer/pkg/collect"
)

// ErrNotFound is returned when no analysis exists for a package.
var ErrNotFound = errors.New("analysis not found")

// Analysis is the stored outcome of analyzing one package version.
type Analysis struct {
	Name       string              `json:"name"`
	Version    string              `json:"version"`
	Source     string              `json:"downloadedFrom,omitempty"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt time.Time           `json:"finishedAt"`
	Collected  collect.Result      `json:"collected"`
	GitHub     *collect.Repository `json:"github,omitempty"`
}

// Duration returns how long the analysis took.
func (a *Analysis) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// Store saves and loads analyses. Saving replaces the previous analysis of
// the same package.
type Store interface {
	Save(ctx context.Context, a *Analysis) error
	Get(ctx context.Context, name string) (*Analysis, error)
	Close(ctx context.Context) error
}

// MemoryStore keeps analyses in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	analyses map[string]*Analysis
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{analyses: make(map[string]*Analysis)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, a *Analysis) error {
	cp := *a
	s.mu.Lock()
	s.analyses[a.Name] = &cp
	s.mu.Unlock()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, name string) (*Analysis, error) {
	s.mu.RLock()
	a, ok := s.analyses[name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Len returns the number of stored analyses.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.analyses)
}

// Close implements Store.
func (s *MemoryStore) Close(context.Context) error { return nil }
