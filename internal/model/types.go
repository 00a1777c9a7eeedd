package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ModelType selects the generation structure of a simulation.
type ModelType string

const (
	// ModelWF is a discrete-generation Wright-Fisher model. Individual ages
	// are not tracked and are reported as AgeNotTracked.
	ModelWF ModelType = "WF"
	// ModelNonWF allows overlapping generations; ages are meaningful.
	ModelNonWF ModelType = "nonWF"
)

// AgeNotTracked is the age reported for individuals in models that do not
// track overlapping generations.
const AgeNotTracked = -1

// NoParent marks an absent parent for founders and clonal offspring.
const NoParent int64 = -1

// OverlappingGenerations reports whether ages are meaningful for the model.
// Unrecognized model types are treated as discrete-generation.
func (m ModelType) OverlappingGenerations() bool {
	return m == ModelNonWF
}

// Valid reports whether the model type is one the engine accepts.
func (m ModelType) Valid() bool {
	switch m {
	case ModelWF, ModelNonWF:
		return true
	default:
		return false
	}
}

// Individual is one live member of a subpopulation as exposed by an engine.
type Individual struct {
	PedigreeID int64 `json:"pedigree_id"`
	Age        int   `json:"age"`
	Parent1    int64 `json:"parent1"`
	Parent2    int64 `json:"parent2"`
}

// Subpopulation is a named collection of individuals. Enumeration order of
// both subpopulations and their individuals is stable for a fixed seed.
type Subpopulation struct {
	ID          string       `json:"id"`
	Individuals []Individual `json:"individuals"`
}

// PedigreeRecord is one persisted pedigree log row.
type PedigreeRecord struct {
	VersionedRecord
	Generation int    `json:"generation"`
	Stage      string `json:"stage"`
	PedigreeID int64  `json:"pedigree_id"`
	Age        int    `json:"age"`
	Parent1    int64  `json:"parent1"`
	Parent2    int64  `json:"parent2"`
}

// GenerationStats summarizes population state at the end of a generation.
type GenerationStats struct {
	Generation   int            `json:"generation"`
	SubpopSizes  map[string]int `json:"subpop_sizes"`
	TotalSize    int            `json:"total_size"`
	MeanAge      float64        `json:"mean_age"`
	NewOffspring int            `json:"new_offspring"`
}

// RunSummary describes one completed simulation run.
type RunSummary struct {
	VersionedRecord
	RunID       string    `json:"run_id"`
	EngineName  string    `json:"engine_name"`
	Model       ModelType `json:"model"`
	Seed        int64     `json:"seed"`
	Generations int       `json:"generations"`
	LogPath     string    `json:"log_path"`
	RecordCount int       `json:"record_count"`
}
