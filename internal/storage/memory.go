package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"creaturelab/internal/model"
)

type generationKey struct {
	runID string
	index int
}

// MemoryStore keeps encoded payloads so every read returns an independent copy.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string][]byte
	generations map[generationKey][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.runs = make(map[string][]byte)
	s.generations = make(map[generationKey][]byte)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.SavedRun) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.ID] = payload
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.SavedRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return model.SavedRun{}, false, ErrNotInitialized
	}

	payload, ok := s.runs[id]
	if !ok {
		return model.SavedRun{}, false, nil
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.SavedRun{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.SavedRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}

	runs := make([]model.SavedRun, 0, len(s.runs))
	for id, payload := range s.runs {
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartTime.Equal(runs[j].StartTime) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	return runs, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}

	delete(s.runs, id)
	for key := range s.generations {
		if key.runID == id {
			delete(s.generations, key)
		}
	}
	return nil
}

func (s *MemoryStore) SaveGeneration(_ context.Context, record model.GenerationRecord) error {
	payload, err := EncodeGeneration(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.generations[generationKey{runID: record.RunID, index: record.Index}] = payload
	return nil
}

func (s *MemoryStore) GetGeneration(_ context.Context, runID string, index int) (model.GenerationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return model.GenerationRecord{}, false, ErrNotInitialized
	}

	payload, ok := s.generations[generationKey{runID: runID, index: index}]
	if !ok {
		return model.GenerationRecord{}, false, nil
	}
	record, err := DecodeGeneration(payload)
	if err != nil {
		return model.GenerationRecord{}, false, fmt.Errorf("decode generation %s/%d: %w", runID, index, err)
	}
	return record, true, nil
}

func (s *MemoryStore) ListGenerations(_ context.Context, runID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}

	indices := make([]int, 0)
	for key := range s.generations {
		if key.runID == runID {
			indices = append(indices, key.index)
		}
	}
	sort.Ints(indices)
	return indices, nil
}
