package model

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Vec() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

func FromVec(v r3.Vec) Vector3 {
	return Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

// CreatureGenome is produced by the genetic algorithm; this module only reads it.
type CreatureGenome struct {
	ID                        string       `json:"id"`
	Generation                int          `json:"generation"`
	ParentIDs                 []string     `json:"parentIds,omitempty"`
	Nodes                     []NodeGene   `json:"nodes"`
	Muscles                   []MuscleGene `json:"muscles"`
	GlobalFrequencyMultiplier float64      `json:"globalFrequencyMultiplier"`
}

type NodeGene struct {
	ID       string  `json:"id"`
	Position Vector3 `json:"position"`
	Size     float64 `json:"size"`
	Friction float64 `json:"friction"`
}

type MuscleGene struct {
	ID         string  `json:"id"`
	NodeA      string  `json:"nodeA"`
	NodeB      string  `json:"nodeB"`
	RestLength float64 `json:"restLength"`
	Stiffness  float64 `json:"stiffness"`
	Damping    float64 `json:"damping"`
	Frequency  float64 `json:"frequency"`
	Amplitude  float64 `json:"amplitude"`
	Phase      float64 `json:"phase"`
}

// EffectiveFrequency is the oscillation rate the muscle is actually driven at.
func (g CreatureGenome) EffectiveFrequency(m MuscleGene) float64 {
	return m.Frequency * g.GlobalFrequencyMultiplier
}

type FitnessWeights struct {
	BaseFitness          float64 `json:"baseFitness" yaml:"base_fitness"`
	PelletWeight         float64 `json:"pelletWeight" yaml:"pellet_weight"`
	ProximityWeight      float64 `json:"proximityWeight" yaml:"proximity_weight"`
	ProximityMaxDistance float64 `json:"proximityMaxDistance" yaml:"proximity_max_distance"`
	MovementWeight       float64 `json:"movementWeight" yaml:"movement_weight"`
	MovementCap          float64 `json:"movementCap" yaml:"movement_cap"`
	DistanceWeight       float64 `json:"distanceWeight" yaml:"distance_weight"`
	DistanceCap          float64 `json:"distanceCap" yaml:"distance_cap"`
}

// EngineConfig holds stepping parameters. Zero fields fall back to the defaults below.
type EngineConfig struct {
	Timestep          float64 `json:"timestep,omitempty" yaml:"timestep"`
	FrameRate         float64 `json:"frameRate,omitempty" yaml:"frame_rate"`
	ExplosionDistance float64 `json:"explosionDistance,omitempty" yaml:"explosion_distance"`
	ExplosionHeight   float64 `json:"explosionHeight,omitempty" yaml:"explosion_height"`
	MaxPellets        int     `json:"maxPellets,omitempty" yaml:"max_pellets"`
	PelletSeed        int64   `json:"pelletSeed,omitempty" yaml:"pellet_seed"`
	Workers           int     `json:"workers,omitempty" yaml:"workers"`
}

const (
	DefaultTimestep          = 1.0 / 60.0
	DefaultFrameRate         = 15.0
	DefaultExplosionDistance = 100.0
	DefaultExplosionHeight   = 50.0
	DefaultMaxPellets        = 10
)

// WithDefaults fills unset engine parameters.
func (e EngineConfig) WithDefaults() EngineConfig {
	if e.Timestep <= 0 {
		e.Timestep = DefaultTimestep
	}
	if e.FrameRate <= 0 {
		e.FrameRate = DefaultFrameRate
	}
	if e.ExplosionDistance <= 0 {
		e.ExplosionDistance = DefaultExplosionDistance
	}
	if e.ExplosionHeight <= 0 {
		e.ExplosionHeight = DefaultExplosionHeight
	}
	if e.MaxPellets <= 0 {
		e.MaxPellets = DefaultMaxPellets
	}
	if e.Workers <= 0 {
		e.Workers = 1
	}
	return e
}

// SimulationConfig is the slice of the run configuration the simulation core reads.
// Extra carries every other run setting through untouched.
type SimulationConfig struct {
	Gravity             float64        `json:"gravity" yaml:"gravity"`
	GroundFriction      float64        `json:"groundFriction" yaml:"ground_friction"`
	SimulationDuration  float64        `json:"simulationDuration" yaml:"simulation_duration"`
	MaxAllowedFrequency float64        `json:"maxAllowedFrequency" yaml:"max_allowed_frequency"`
	ArenaSize           float64        `json:"arenaSize" yaml:"arena_size"`
	FitnessWeights      FitnessWeights `json:"fitnessWeights" yaml:"fitness_weights"`
	Engine              EngineConfig   `json:"engine,omitempty" yaml:"engine"`
	Extra               map[string]any `json:"extra,omitempty" yaml:",inline"`
}

type SimulationFrame struct {
	Time              float64            `json:"time"`
	NodePositions     map[string]Vector3 `json:"nodePositions"`
	CenterOfMass      Vector3            `json:"centerOfMass"`
	ActivePelletIndex int                `json:"activePelletIndex"`
}

type PelletData struct {
	ID               string  `json:"id"`
	Position         Vector3 `json:"position"`
	CollectedAtFrame *int    `json:"collectedAtFrame"`
	SpawnedAtFrame   int     `json:"spawnedAtFrame"`
}

// ActiveAt reports whether the pellet is spawned and still uncollected at frame i.
func (p PelletData) ActiveAt(i int) bool {
	if p.SpawnedAtFrame > i {
		return false
	}
	return p.CollectedAtFrame == nil || *p.CollectedAtFrame > i
}

// FirstActivePellet returns the index of the first pellet, by spawn order, that is
// still uncollected at frame i, or -1.
func FirstActivePellet(pellets []PelletData, i int) int {
	for idx, p := range pellets {
		if p.CollectedAtFrame == nil || *p.CollectedAtFrame > i {
			return idx
		}
	}
	return -1
}

type CreatureSimulationResult struct {
	Genome                CreatureGenome         `json:"genome"`
	Frames                []SimulationFrame      `json:"frames"`
	FinalFitness          float64                `json:"finalFitness"`
	PelletsCollected      int                    `json:"pelletsCollected"`
	DistanceTraveled      float64                `json:"distanceTraveled"`
	NetDisplacement       float64                `json:"netDisplacement"`
	ClosestPelletDistance float64                `json:"closestPelletDistance"`
	Pellets               []PelletData           `json:"pellets"`
	FitnessOverTime       []float64              `json:"fitnessOverTime"`
	Disqualified          DisqualificationReason `json:"disqualified"`
}

func (r CreatureSimulationResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("genome", r.Genome.ID),
		slog.Float64("fitness", r.FinalFitness),
		slog.Int("pellets", r.PelletsCollected),
		slog.String("disqualified", r.Disqualified.String()),
	)
}

type CompactPellet struct {
	Position         Vector3 `json:"position"`
	CollectedAtFrame *int    `json:"collectedAtFrame"`
}

// CompactCreatureResult is the persisted form of a simulation result. Field names
// are part of the on-disk format.
type CompactCreatureResult struct {
	Genome       CreatureGenome         `json:"genome"`
	Fitness      float64                `json:"fitness"`
	Pellets      int                    `json:"pellets"`
	Disqualified DisqualificationReason `json:"disqualified"`
	Frames       [][]float64            `json:"frames"`
	PelletData   []CompactPellet        `json:"pelletData"`
}

type FitnessHistoryEntry struct {
	Generation int     `json:"generation" csv:"generation"`
	Best       float64 `json:"best" csv:"best"`
	Average    float64 `json:"average" csv:"average"`
	Worst      float64 `json:"worst" csv:"worst"`
}

type CreatureTypeHistoryEntry struct {
	Generation int         `json:"generation"`
	NodeCounts map[int]int `json:"nodeCounts"`
}

type BestCreatureRecord struct {
	Generation int                   `json:"generation"`
	Result     CompactCreatureResult `json:"result"`
}

type LongestSurvivorRecord struct {
	Result           CompactCreatureResult `json:"result"`
	Streak           int                   `json:"streak"`
	DiedAtGeneration int                   `json:"diedAtGeneration"`
}

type SavedRun struct {
	VersionedRecord
	ID                  string                     `json:"id"`
	Name                string                     `json:"name,omitempty"`
	StartTime           time.Time                  `json:"startTime"`
	Config              SimulationConfig           `json:"config"`
	GenerationCount     int                        `json:"generationCount"`
	FitnessHistory      []FitnessHistoryEntry      `json:"fitnessHistory,omitempty"`
	CreatureTypeHistory []CreatureTypeHistoryEntry `json:"creatureTypeHistory,omitempty"`
	BestCreature        *BestCreatureRecord        `json:"bestCreature,omitempty"`
	LongestSurvivor     *LongestSurvivorRecord     `json:"longestSurvivor,omitempty"`
	ForkedFrom          string                     `json:"forkedFrom,omitempty"`
}

// GenerationRecord is one persisted generation keyed by (RunID, Index).
type GenerationRecord struct {
	VersionedRecord
	RunID   string                  `json:"runId"`
	Index   int                     `json:"generation"`
	Results []CompactCreatureResult `json:"results"`
}
