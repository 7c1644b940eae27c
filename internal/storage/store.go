package storage

import (
	"context"
	"errors"

	"creaturelab/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists run metadata and per-generation results. Generations are keyed
// by (run id, generation index) and never overwrite each other across runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.SavedRun) error
	GetRun(ctx context.Context, id string) (model.SavedRun, bool, error)
	ListRuns(ctx context.Context) ([]model.SavedRun, error)
	DeleteRun(ctx context.Context, id string) error
	SaveGeneration(ctx context.Context, record model.GenerationRecord) error
	GetGeneration(ctx context.Context, runID string, index int) (model.GenerationRecord, bool, error)
	ListGenerations(ctx context.Context, runID string) ([]int, error)
}
