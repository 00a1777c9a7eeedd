package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"stirps/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunSummary
	stats       map[string][]model.GenerationStats
	pedigree    map[string][]model.PedigreeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var errMemoryNotInitialized = errors.New("memory store is not initialized")

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunSummary)
	s.stats = make(map[string][]model.GenerationStats)
	s.pedigree = make(map[string][]model.PedigreeRecord)
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	return s.Init(ctx)
}

func (s *MemoryStore) SaveRunSummary(_ context.Context, summary model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errMemoryNotInitialized
	}
	s.runs[summary.RunID] = summary
	return nil
}

func (s *MemoryStore) GetRunSummary(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.RunSummary{}, false, errMemoryNotInitialized
	}
	summary, ok := s.runs[runID]
	return summary, ok, nil
}

func (s *MemoryStore) ListRunSummaries(_ context.Context) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errMemoryNotInitialized
	}
	out := make([]model.RunSummary, 0, len(s.runs))
	for _, summary := range s.runs {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}

func (s *MemoryStore) SaveGenerationStats(_ context.Context, runID string, stats []model.GenerationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errMemoryNotInitialized
	}
	copied := make([]model.GenerationStats, 0, len(stats))
	for _, item := range stats {
		sizes := make(map[string]int, len(item.SubpopSizes))
		for k, v := range item.SubpopSizes {
			sizes[k] = v
		}
		item.SubpopSizes = sizes
		copied = append(copied, item)
	}
	s.stats[runID] = copied
	return nil
}

func (s *MemoryStore) GetGenerationStats(_ context.Context, runID string) ([]model.GenerationStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, errMemoryNotInitialized
	}
	stats, ok := s.stats[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationStats, 0, len(stats))
	for _, item := range stats {
		sizes := make(map[string]int, len(item.SubpopSizes))
		for k, v := range item.SubpopSizes {
			sizes[k] = v
		}
		item.SubpopSizes = sizes
		copied = append(copied, item)
	}
	return copied, true, nil
}

func (s *MemoryStore) SavePedigree(_ context.Context, runID string, records []model.PedigreeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errMemoryNotInitialized
	}
	copied := make([]model.PedigreeRecord, len(records))
	copy(copied, records)
	s.pedigree[runID] = copied
	return nil
}

func (s *MemoryStore) GetPedigree(_ context.Context, runID string) ([]model.PedigreeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, errMemoryNotInitialized
	}
	records, ok := s.pedigree[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.PedigreeRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}
