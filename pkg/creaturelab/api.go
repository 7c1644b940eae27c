package creaturelab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"

	"creaturelab/internal/config"
	"creaturelab/internal/evo"
	"creaturelab/internal/logging"
	"creaturelab/internal/model"
	"creaturelab/internal/platform"
	"creaturelab/internal/scape"
	"creaturelab/internal/stats"
	"creaturelab/internal/storage"
)

const (
	defaultExportsDir = "exports"
	defaultDBPath     = "creaturelab.db"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
	// Simulation is used for new runs. Nil means the embedded defaults.
	Simulation *model.SimulationConfig
	Logger     *slog.Logger
}

type Client struct {
	store      storage.Store
	simulation model.SimulationConfig
	exportsDir string
	logger     *slog.Logger

	mu        sync.Mutex
	runs      *platform.RunStore
	evalLocks map[string]*sync.Mutex
}

type EvaluateRequest struct {
	// RunID continues an existing run; empty starts a new one.
	RunID string
	// Generation to save under. Negative means one past the highest stored generation.
	Generation int
	Genomes    []model.CreatureGenome
	Progress   evo.ProgressFunc
	// Reporter, when set, builds the progress callback once the run id and
	// generation are resolved. It takes precedence over Progress.
	Reporter func(runID string, generation int) evo.ProgressFunc
}

type EvaluateSummary struct {
	RunID        string
	Generation   int
	Fitness      model.FitnessHistoryEntry
	BestGenomeID string
	Disqualified int
	Results      []model.CreatureSimulationResult
}

// ScoreSummary is the scalar outcome of one genome in a scape.
type ScoreSummary struct {
	Scape   string
	Fitness float64
	Trace   scape.Trace
}

type ReplayRequest struct {
	RunID      string
	Generation int
}

type RunsRequest struct {
	Limit int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var simulation model.SimulationConfig
	if opts.Simulation != nil {
		simulation = *opts.Simulation
	} else {
		defaults, err := config.Load("")
		if err != nil {
			return nil, err
		}
		simulation = defaults.Simulation
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		simulation: simulation,
		exportsDir: exportsDir,
		logger:     logger,
		evalLocks:  make(map[string]*sync.Mutex),
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureRunStore(ctx)
	return err
}

// Simulate evaluates one genome under the client's simulation settings without persisting it.
func (c *Client) Simulate(_ context.Context, genome model.CreatureGenome) (model.CreatureSimulationResult, error) {
	return scape.NewArena(c.simulation, c.logger).Simulate(genome)
}

// Score runs one genome through the arena and keeps only its score and trace.
func (c *Client) Score(ctx context.Context, genome model.CreatureGenome) (ScoreSummary, error) {
	arena := scape.NewArena(c.simulation, c.logger)
	fitness, trace, err := arena.Evaluate(ctx, genome)
	if err != nil {
		return ScoreSummary{}, err
	}
	return ScoreSummary{Scape: arena.Name(), Fitness: float64(fitness), Trace: trace}, nil
}

// Evaluate simulates a population, stores it as one generation and refreshes
// the run's histories and records.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	if len(req.Genomes) == 0 {
		return EvaluateSummary{}, errors.New("evaluate requires at least one genome")
	}
	runs, err := c.ensureRunStore(ctx)
	if err != nil {
		return EvaluateSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID, err = runs.CreateRun(ctx, c.simulation)
		if err != nil {
			return EvaluateSummary{}, err
		}
	} else if err := runs.ResumeRun(ctx, runID); err != nil {
		return EvaluateSummary{}, err
	}

	// Evaluations of the same run resolve generations and merge histories in
	// turn; different runs proceed independently.
	unlock := c.lockRun(runID)
	defer unlock()

	run, ok, err := runs.GetRun(ctx, runID)
	if err != nil {
		return EvaluateSummary{}, err
	}
	if !ok {
		return EvaluateSummary{}, fmt.Errorf("%w: %s", platform.ErrNotFound, runID)
	}

	generation := req.Generation
	if generation < 0 {
		maxGen, err := runs.GetMaxGeneration(ctx, runID)
		if err != nil {
			return EvaluateSummary{}, err
		}
		generation = maxGen + 1
	}

	progress := req.Progress
	if req.Reporter != nil {
		progress = req.Reporter(runID, generation)
	}

	batch, err := evo.NewBatchSimulator(evo.BatchConfig{Simulation: run.Config, Logger: c.logger})
	if err != nil {
		return EvaluateSummary{}, err
	}
	results, err := batch.SimulatePopulation(ctx, req.Genomes, progress)
	if err != nil {
		return EvaluateSummary{}, err
	}

	if err := runs.SaveGenerationFor(ctx, runID, generation, results); err != nil {
		return EvaluateSummary{}, err
	}
	fitness := evo.SummarizeFitness(generation, results)
	if err := runs.UpdateFitnessHistoryFor(ctx, runID, mergeFitnessHistory(run.FitnessHistory, fitness)); err != nil {
		return EvaluateSummary{}, err
	}
	types := evo.SummarizeCreatureTypes(generation, results)
	if err := runs.UpdateCreatureTypeHistoryFor(ctx, runID, mergeCreatureTypeHistory(run.CreatureTypeHistory, types)); err != nil {
		return EvaluateSummary{}, err
	}

	best := evo.Best(results)
	if run.BestCreature == nil || results[best].FinalFitness > run.BestCreature.Result.Fitness {
		if err := runs.UpdateBestCreatureFor(ctx, runID, results[best], generation); err != nil {
			return EvaluateSummary{}, err
		}
	}
	if err := c.updateLongestSurvivor(ctx, runs, run, generation, results); err != nil {
		return EvaluateSummary{}, err
	}

	c.logger.Info("generation evaluated",
		"run_id", runID,
		"generation", generation,
		"average", fitness.Average,
		"best", results[best],
	)

	summary := EvaluateSummary{
		RunID:        runID,
		Generation:   generation,
		Fitness:      fitness,
		BestGenomeID: results[best].Genome.ID,
		Results:      results,
	}
	for _, r := range results {
		if r.Disqualified.IsDisqualified() {
			summary.Disqualified++
		}
	}
	return summary, nil
}

// updateLongestSurvivor records the longest-lived genome that was present in
// the previous generation but is missing from this one.
func (c *Client) updateLongestSurvivor(
	ctx context.Context,
	runs *platform.RunStore,
	run model.SavedRun,
	generation int,
	results []model.CreatureSimulationResult,
) error {
	if generation == 0 {
		return nil
	}
	previous, ok, err := runs.LoadGeneration(ctx, run.ID, generation-1, run.Config.FitnessWeights)
	if err != nil || !ok {
		return err
	}
	alive := make(map[string]struct{}, len(results))
	for _, r := range results {
		alive[r.Genome.ID] = struct{}{}
	}

	bestStreak := 0
	if run.LongestSurvivor != nil {
		bestStreak = run.LongestSurvivor.Streak
	}
	var (
		survivor model.CreatureSimulationResult
		found    bool
	)
	for _, r := range previous {
		if _, ok := alive[r.Genome.ID]; ok {
			continue
		}
		streak := generation - r.Genome.Generation
		if streak > bestStreak {
			bestStreak = streak
			survivor = r
			found = true
		}
	}
	if !found {
		return nil
	}
	return runs.UpdateLongestSurvivorFor(ctx, run.ID, survivor, bestStreak, generation)
}

// Replay loads a stored generation and rebuilds each fitness curve with the run's weights.
func (c *Client) Replay(ctx context.Context, req ReplayRequest) ([]model.CreatureSimulationResult, error) {
	runs, err := c.ensureRunStore(ctx)
	if err != nil {
		return nil, err
	}
	run, err := c.Run(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	results, ok, err := runs.LoadGeneration(ctx, run.ID, req.Generation, run.Config.FitnessWeights)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("generation %d of run %s: %w", req.Generation, run.ID, platform.ErrNotFound)
	}
	return results, nil
}

func (c *Client) Run(ctx context.Context, runID string) (model.SavedRun, error) {
	runs, err := c.ensureRunStore(ctx)
	if err != nil {
		return model.SavedRun{}, err
	}
	run, ok, err := runs.GetRun(ctx, runID)
	if err != nil {
		return model.SavedRun{}, err
	}
	if !ok {
		return model.SavedRun{}, fmt.Errorf("%w: %s", platform.ErrNotFound, runID)
	}
	return run, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.SavedRun, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runs, err := c.ensureRunStore(ctx)
	if err != nil {
		return nil, err
	}
	all, err := runs.GetAllRuns(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(all) > req.Limit {
		all = all[:req.Limit]
	}
	return all, nil
}

func (c *Client) Fork(ctx context.Context, runID string, cutoff int) (string, error) {
	runs, err := c.ensureRunStore(ctx)
	if err != nil {
		return "", err
	}
	return runs.ForkRun(ctx, runID, cutoff)
}

func (c *Client) Delete(ctx context.Context, runID string) error {
	runs, err := c.ensureRunStore(ctx)
	if err != nil {
		return err
	}
	if err := runs.DeleteRun(ctx, runID); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.evalLocks, runID)
	c.mu.Unlock()
	return nil
}

func (c *Client) Rename(ctx context.Context, runID, name string) error {
	runs, err := c.ensureRunStore(ctx)
	if err != nil {
		return err
	}
	return runs.UpdateRunName(ctx, runID, name)
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	var run model.SavedRun
	if req.Latest {
		all, err := c.Runs(ctx, RunsRequest{Limit: 1})
		if err != nil {
			return ExportSummary{}, err
		}
		if len(all) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		run = all[0]
	} else {
		var err error
		run, err = c.Run(ctx, req.RunID)
		if err != nil {
			return ExportSummary{}, err
		}
	}

	dir, err := stats.ExportRun(req.OutDir, run)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: run.ID, Directory: filepath.Clean(dir)}, nil
}

// WriteFitnessHistory streams a run's fitness history as CSV.
func (c *Client) WriteFitnessHistory(ctx context.Context, runID string, w io.Writer) error {
	run, err := c.Run(ctx, runID)
	if err != nil {
		return err
	}
	return stats.WriteFitnessHistoryCSV(w, run.FitnessHistory)
}

func (c *Client) Schema(kind string) (*jsonschema.Schema, error) {
	return stats.RecordSchema(kind)
}

func (c *Client) ensureRunStore(ctx context.Context) (*platform.RunStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs != nil {
		return c.runs, nil
	}
	runs := platform.NewRunStore(platform.Config{Store: c.store, Logger: c.logger})
	if err := runs.Init(ctx); err != nil {
		return nil, err
	}
	c.runs = runs
	return c.runs, nil
}

func (c *Client) lockRun(runID string) func() {
	c.mu.Lock()
	lock, ok := c.evalLocks[runID]
	if !ok {
		lock = &sync.Mutex{}
		c.evalLocks[runID] = lock
	}
	c.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func mergeFitnessHistory(history []model.FitnessHistoryEntry, entry model.FitnessHistoryEntry) []model.FitnessHistoryEntry {
	out := make([]model.FitnessHistoryEntry, 0, len(history)+1)
	for _, h := range history {
		if h.Generation != entry.Generation {
			out = append(out, h)
		}
	}
	out = append(out, entry)
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out
}

func mergeCreatureTypeHistory(history []model.CreatureTypeHistoryEntry, entry model.CreatureTypeHistoryEntry) []model.CreatureTypeHistoryEntry {
	out := make([]model.CreatureTypeHistoryEntry, 0, len(history)+1)
	for _, h := range history {
		if h.Generation != entry.Generation {
			out = append(out, h)
		}
	}
	out = append(out, entry)
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out
}
