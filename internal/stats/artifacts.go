package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"

	"creaturelab/internal/model"
)

// CreatureTypeRow is one (generation, node count) cell of the creature type history.
type CreatureTypeRow struct {
	Generation int `csv:"generation"`
	Nodes      int `csv:"nodes"`
	Count      int `csv:"count"`
}

// RunSummary is the lightweight run metadata written next to the CSV exports.
type RunSummary struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name,omitempty"`
	StartTime       string                 `json:"start_time"`
	GenerationCount int                    `json:"generation_count"`
	ForkedFrom      string                 `json:"forked_from,omitempty"`
	Config          model.SimulationConfig `json:"config"`
	BestFitness     *float64               `json:"best_fitness,omitempty"`
	BestGeneration  *int                   `json:"best_generation,omitempty"`
}

func WriteFitnessHistoryCSV(w io.Writer, history []model.FitnessHistoryEntry) error {
	rows := append([]model.FitnessHistoryEntry(nil), history...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Generation < rows[j].Generation })
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing fitness history: %w", err)
	}
	return nil
}

func ReadFitnessHistoryCSV(r io.Reader) ([]model.FitnessHistoryEntry, error) {
	var rows []model.FitnessHistoryEntry
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("reading fitness history: %w", err)
	}
	return rows, nil
}

// CreatureTypeRows flattens the history into rows ordered by generation then node count.
func CreatureTypeRows(history []model.CreatureTypeHistoryEntry) []CreatureTypeRow {
	rows := make([]CreatureTypeRow, 0)
	for _, entry := range history {
		for nodes, count := range entry.NodeCounts {
			rows = append(rows, CreatureTypeRow{Generation: entry.Generation, Nodes: nodes, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Generation == rows[j].Generation {
			return rows[i].Nodes < rows[j].Nodes
		}
		return rows[i].Generation < rows[j].Generation
	})
	return rows
}

func WriteCreatureTypesCSV(w io.Writer, history []model.CreatureTypeHistoryEntry) error {
	if err := gocsv.Marshal(CreatureTypeRows(history), w); err != nil {
		return fmt.Errorf("writing creature types: %w", err)
	}
	return nil
}

func Summarize(run model.SavedRun) RunSummary {
	summary := RunSummary{
		ID:              run.ID,
		Name:            run.Name,
		StartTime:       run.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
		GenerationCount: run.GenerationCount,
		ForkedFrom:      run.ForkedFrom,
		Config:          run.Config,
	}
	if run.BestCreature != nil {
		fitness := run.BestCreature.Result.Fitness
		generation := run.BestCreature.Generation
		summary.BestFitness = &fitness
		summary.BestGeneration = &generation
	}
	return summary
}

// ExportRun writes run.json, fitness_history.csv, creature_types.csv and, when
// present, best_creature.json into outDir/<run id>.
func ExportRun(outDir string, run model.SavedRun) (string, error) {
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(outDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), Summarize(run)); err != nil {
		return "", err
	}
	if err := writeCSVFile(filepath.Join(runDir, "fitness_history.csv"), func(w io.Writer) error {
		return WriteFitnessHistoryCSV(w, run.FitnessHistory)
	}); err != nil {
		return "", err
	}
	if err := writeCSVFile(filepath.Join(runDir, "creature_types.csv"), func(w io.Writer) error {
		return WriteCreatureTypesCSV(w, run.CreatureTypeHistory)
	}); err != nil {
		return "", err
	}
	if run.BestCreature != nil {
		if err := writeJSON(filepath.Join(runDir, "best_creature.json"), run.BestCreature); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

func writeCSVFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
