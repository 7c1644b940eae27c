package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"creaturelab/internal/logging"
	"creaturelab/internal/model"
	"creaturelab/internal/storage"
)

var (
	ErrNotFound     = errors.New("run not found")
	ErrNoCurrentRun = errors.New("no current run")
)

type Config struct {
	Store  storage.Store
	Logger *slog.Logger
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// RunStore persists runs and their generations on top of a storage backend.
// Metadata updates are read-modify-write and are serialised per run.
type RunStore struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.RWMutex
	started  bool
	current  string
	runLocks map[string]*sync.Mutex
}

func NewRunStore(cfg Config) *RunStore {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &RunStore{
		store:    cfg.Store,
		logger:   logger,
		now:      now,
		newID:    newID,
		runLocks: make(map[string]*sync.Mutex),
	}
}

func (r *RunStore) Init(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("store is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.store.Init(ctx); err != nil {
		return err
	}
	r.started = true
	return nil
}

// CurrentRunID returns the run that generation saves and metadata updates target.
func (r *RunStore) CurrentRunID() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.current != ""
}

func (r *RunStore) CreateRun(ctx context.Context, cfg model.SimulationConfig) (string, error) {
	if err := r.ready(); err != nil {
		return "", err
	}
	run := model.SavedRun{
		ID:        r.newID(),
		StartTime: r.now().UTC(),
		Config:    cfg,
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("save run %s: %w", run.ID, err)
	}
	r.setCurrent(run.ID)
	r.logger.Info("run created", "run_id", run.ID)
	return run.ID, nil
}

// ResumeRun makes an existing run current again.
func (r *RunStore) ResumeRun(ctx context.Context, id string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if _, ok, err := r.store.GetRun(ctx, id); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.setCurrent(id)
	r.logger.Info("run resumed", "run_id", id)
	return nil
}

// SaveGeneration stores results under (current run, genIndex).
func (r *RunStore) SaveGeneration(ctx context.Context, genIndex int, results []model.CreatureSimulationResult) error {
	if err := r.ready(); err != nil {
		return err
	}
	runID, err := r.currentRun()
	if err != nil {
		return err
	}
	return r.SaveGenerationFor(ctx, runID, genIndex, results)
}

// SaveGenerationFor stores results under (runID, genIndex). The run's
// generation count never shrinks, so concurrent saves of different indices
// settle on the highest one.
func (r *RunStore) SaveGenerationFor(ctx context.Context, runID string, genIndex int, results []model.CreatureSimulationResult) error {
	if err := r.ready(); err != nil {
		return err
	}
	if genIndex < 0 {
		return fmt.Errorf("generation index must be non-negative: %d", genIndex)
	}
	if _, ok, err := r.store.GetRun(ctx, runID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	record := model.GenerationRecord{
		RunID:   runID,
		Index:   genIndex,
		Results: make([]model.CompactCreatureResult, 0, len(results)),
	}
	for _, result := range results {
		record.Results = append(record.Results, storage.CompactResult(result))
	}
	if err := r.store.SaveGeneration(ctx, record); err != nil {
		return fmt.Errorf("save generation %s/%d: %w", runID, genIndex, err)
	}

	err := r.updateRun(ctx, runID, func(run *model.SavedRun) {
		run.GenerationCount = max(run.GenerationCount, genIndex+1)
	})
	if err != nil {
		return err
	}
	r.logger.Debug("generation saved", "run_id", runID, "generation", genIndex, "creatures", len(results))
	return nil
}

// LoadGeneration expands a stored generation and regenerates each creature's
// fitness curve under weights. A missing generation yields ok=false.
func (r *RunStore) LoadGeneration(ctx context.Context, runID string, genIndex int, weights model.FitnessWeights) ([]model.CreatureSimulationResult, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	record, ok, err := r.store.GetGeneration(ctx, runID, genIndex)
	if err != nil || !ok {
		return nil, ok, err
	}
	results := make([]model.CreatureSimulationResult, 0, len(record.Results))
	for i, compact := range record.Results {
		result, err := storage.ExpandResult(compact, weights)
		if err != nil {
			return nil, false, fmt.Errorf("expand %s/%d creature %d: %w", runID, genIndex, i, err)
		}
		results = append(results, result)
	}
	return results, true, nil
}

func (r *RunStore) GetRun(ctx context.Context, id string) (model.SavedRun, bool, error) {
	if err := r.ready(); err != nil {
		return model.SavedRun{}, false, err
	}
	return r.store.GetRun(ctx, id)
}

// GetAllRuns lists runs newest first.
func (r *RunStore) GetAllRuns(ctx context.Context) ([]model.SavedRun, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.store.ListRuns(ctx)
}

func (r *RunStore) DeleteRun(ctx context.Context, id string) error {
	if err := r.ready(); err != nil {
		return err
	}
	lock := r.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := r.store.DeleteRun(ctx, id); err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	r.mu.Lock()
	if r.current == id {
		r.current = ""
	}
	delete(r.runLocks, id)
	r.mu.Unlock()
	r.logger.Info("run deleted", "run_id", id)
	return nil
}

func (r *RunStore) UpdateRunName(ctx context.Context, id, name string) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.UpdateRun(ctx, id, func(run *model.SavedRun) {
		run.Name = name
	})
}

// GetMaxGeneration returns the highest stored generation index, or -1.
func (r *RunStore) GetMaxGeneration(ctx context.Context, runID string) (int, error) {
	if err := r.ready(); err != nil {
		return -1, err
	}
	indices, err := r.store.ListGenerations(ctx, runID)
	if err != nil {
		return -1, err
	}
	if len(indices) == 0 {
		return -1, nil
	}
	return indices[len(indices)-1], nil
}

// The Update* methods replace one field of the current run; the *For
// variants target an explicit run and are safe while other runs are current.

func (r *RunStore) UpdateFitnessHistory(ctx context.Context, history []model.FitnessHistoryEntry) error {
	return r.forCurrent(func(runID string) error { return r.UpdateFitnessHistoryFor(ctx, runID, history) })
}

func (r *RunStore) UpdateFitnessHistoryFor(ctx context.Context, runID string, history []model.FitnessHistoryEntry) error {
	return r.UpdateRun(ctx, runID, func(run *model.SavedRun) {
		run.FitnessHistory = append([]model.FitnessHistoryEntry(nil), history...)
	})
}

func (r *RunStore) UpdateCreatureTypeHistory(ctx context.Context, history []model.CreatureTypeHistoryEntry) error {
	return r.forCurrent(func(runID string) error { return r.UpdateCreatureTypeHistoryFor(ctx, runID, history) })
}

func (r *RunStore) UpdateCreatureTypeHistoryFor(ctx context.Context, runID string, history []model.CreatureTypeHistoryEntry) error {
	return r.UpdateRun(ctx, runID, func(run *model.SavedRun) {
		run.CreatureTypeHistory = append([]model.CreatureTypeHistoryEntry(nil), history...)
	})
}

func (r *RunStore) UpdateBestCreature(ctx context.Context, result model.CreatureSimulationResult, generation int) error {
	return r.forCurrent(func(runID string) error { return r.UpdateBestCreatureFor(ctx, runID, result, generation) })
}

func (r *RunStore) UpdateBestCreatureFor(ctx context.Context, runID string, result model.CreatureSimulationResult, generation int) error {
	compact := storage.CompactResult(result)
	return r.UpdateRun(ctx, runID, func(run *model.SavedRun) {
		run.BestCreature = &model.BestCreatureRecord{Generation: generation, Result: compact}
	})
}

func (r *RunStore) UpdateLongestSurvivor(ctx context.Context, result model.CreatureSimulationResult, streak, diedAtGeneration int) error {
	return r.forCurrent(func(runID string) error {
		return r.UpdateLongestSurvivorFor(ctx, runID, result, streak, diedAtGeneration)
	})
}

func (r *RunStore) UpdateLongestSurvivorFor(ctx context.Context, runID string, result model.CreatureSimulationResult, streak, diedAtGeneration int) error {
	compact := storage.CompactResult(result)
	return r.UpdateRun(ctx, runID, func(run *model.SavedRun) {
		run.LongestSurvivor = &model.LongestSurvivorRecord{
			Result:           compact,
			Streak:           streak,
			DiedAtGeneration: diedAtGeneration,
		}
	})
}

// UpdateRun applies mutate to the stored metadata of runID under that run's lock.
func (r *RunStore) UpdateRun(ctx context.Context, runID string, mutate func(*model.SavedRun)) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.updateRun(ctx, runID, mutate)
}

// ForkRun copies a run up to and including generation cutoff into a new run,
// which becomes current. Histories and records past the cutoff are dropped.
func (r *RunStore) ForkRun(ctx context.Context, sourceID string, cutoff int) (string, error) {
	if err := r.ready(); err != nil {
		return "", err
	}
	if cutoff < 0 {
		return "", fmt.Errorf("fork cutoff must be non-negative: %d", cutoff)
	}

	lock := r.runLock(sourceID)
	lock.Lock()
	source, ok, err := r.store.GetRun(ctx, sourceID)
	lock.Unlock()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}

	fork := model.SavedRun{
		ID:              r.newID(),
		Name:            fmt.Sprintf("%s (fork @ gen %d)", runLabel(source), cutoff),
		StartTime:       r.now().UTC(),
		Config:          source.Config,
		GenerationCount: min(source.GenerationCount, cutoff+1),
		ForkedFrom:      source.ID,
	}
	for _, entry := range source.FitnessHistory {
		if entry.Generation <= cutoff {
			fork.FitnessHistory = append(fork.FitnessHistory, entry)
		}
	}
	for _, entry := range source.CreatureTypeHistory {
		if entry.Generation <= cutoff {
			fork.CreatureTypeHistory = append(fork.CreatureTypeHistory, entry)
		}
	}
	if source.BestCreature != nil && source.BestCreature.Generation <= cutoff {
		best := *source.BestCreature
		fork.BestCreature = &best
	}
	if source.LongestSurvivor != nil && source.LongestSurvivor.DiedAtGeneration <= cutoff {
		survivor := *source.LongestSurvivor
		fork.LongestSurvivor = &survivor
	}

	indices, err := r.store.ListGenerations(ctx, sourceID)
	if err != nil {
		return "", err
	}
	copied, err := r.copyGenerations(ctx, sourceID, fork.ID, indices, cutoff)
	if err == nil {
		err = r.store.SaveRun(ctx, fork)
		if err != nil {
			err = fmt.Errorf("save run %s: %w", fork.ID, err)
		}
	}
	if err != nil {
		if cleanupErr := r.store.DeleteRun(ctx, fork.ID); cleanupErr != nil {
			r.logger.Warn("failed to remove partial fork", "run_id", fork.ID, "error", cleanupErr)
		}
		return "", err
	}
	r.setCurrent(fork.ID)
	r.logger.Info("run forked", "source_run_id", sourceID, "run_id", fork.ID, "cutoff", cutoff, "generations", copied)
	return fork.ID, nil
}

func (r *RunStore) copyGenerations(ctx context.Context, sourceID, targetID string, indices []int, cutoff int) (int, error) {
	copied := 0
	for _, index := range indices {
		if index > cutoff {
			break
		}
		record, ok, err := r.store.GetGeneration(ctx, sourceID, index)
		if err != nil {
			return copied, fmt.Errorf("read generation %s/%d: %w", sourceID, index, err)
		}
		if !ok {
			continue
		}
		record.RunID = targetID
		if err := r.store.SaveGeneration(ctx, record); err != nil {
			return copied, fmt.Errorf("copy generation %d to %s: %w", index, targetID, err)
		}
		copied++
	}
	return copied, nil
}

func runLabel(run model.SavedRun) string {
	if run.Name != "" {
		return run.Name
	}
	return run.ID
}

func (r *RunStore) ready() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.started {
		return storage.ErrNotInitialized
	}
	return nil
}

func (r *RunStore) setCurrent(id string) {
	r.mu.Lock()
	r.current = id
	r.mu.Unlock()
}

func (r *RunStore) currentRun() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return "", ErrNoCurrentRun
	}
	return r.current, nil
}

func (r *RunStore) runLock(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.runLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.runLocks[id] = lock
	}
	return lock
}

func (r *RunStore) forCurrent(apply func(runID string) error) error {
	if err := r.ready(); err != nil {
		return err
	}
	runID, err := r.currentRun()
	if err != nil {
		return err
	}
	return apply(runID)
}

func (r *RunStore) updateRun(ctx context.Context, id string, mutate func(*model.SavedRun)) error {
	lock := r.runLock(id)
	lock.Lock()
	defer lock.Unlock()

	run, ok, err := r.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	mutate(&run)
	if err := r.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", id, err)
	}
	return nil
}
