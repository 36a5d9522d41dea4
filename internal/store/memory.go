package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/i474232898/terrain-invest/internal/risk"
	"github.com/i474232898/terrain-invest/internal/terrain"
)

// MemoryStore is a concurrency-safe in-memory implementation of Store.
type MemoryStore struct {
	mu sync.RWMutex

	sites       []terrain.Location
	analyses    []terrain.AnalysisResult
	predictions []risk.Prediction

	// max number of analyses and predictions kept (0 = unlimited)
	maxHistory int
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, history is unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{maxHistory: maxHistory}
}

// AddSite registers a site for batch analysis.
func (s *MemoryStore) AddSite(_ context.Context, site terrain.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sites {
		if existing.ID == site.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateSite, site.ID)
		}
	}
	s.sites = append(s.sites, site)
	return nil
}

// ListSites returns the matching sites in registration order, or all of them when ids is empty.
func (s *MemoryStore) ListSites(_ context.Context, ids []string) ([]terrain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		out := make([]terrain.Location, len(s.sites))
		copy(out, s.sites)
		return out, nil
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := make([]terrain.Location, 0, len(ids))
	for _, site := range s.sites {
		if _, ok := wanted[site.ID]; ok {
			out = append(out, site)
		}
	}
	return out, nil
}

// SaveAnalysis appends a result and enforces retention.
func (s *MemoryStore) SaveAnalysis(_ context.Context, result terrain.AnalysisResult) (terrain.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analyses = append(s.analyses, result)
	if s.maxHistory > 0 && len(s.analyses) > s.maxHistory {
		s.analyses = s.analyses[len(s.analyses)-s.maxHistory:]
	}
	return result, nil
}

// ListAnalyses returns all results, newest first. Equal timestamps keep the later insert first.
func (s *MemoryStore) ListAnalyses(_ context.Context) ([]terrain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]terrain.AnalysisResult, 0, len(s.analyses))
	for i := len(s.analyses) - 1; i >= 0; i-- {
		out = append(out, s.analyses[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SavePrediction appends a prediction and enforces retention.
func (s *MemoryStore) SavePrediction(_ context.Context, p risk.Prediction) (risk.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.predictions = append(s.predictions, p)
	if s.maxHistory > 0 && len(s.predictions) > s.maxHistory {
		s.predictions = s.predictions[len(s.predictions)-s.maxHistory:]
	}
	return p, nil
}

// ListPredictions returns up to limit predictions, newest first.
func (s *MemoryStore) ListPredictions(_ context.Context, limit int) ([]risk.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]risk.Prediction, 0, len(s.predictions))
	for i := len(s.predictions) - 1; i >= 0; i-- {
		out = append(out, s.predictions[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
