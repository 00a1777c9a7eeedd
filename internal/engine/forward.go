package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"stirps/internal/model"
)

// SubpopSpec declares one subpopulation and its target size.
type SubpopSpec struct {
	ID   string
	Size int
}

// ForwardConfig configures the built-in neutral-demography engine. The
// genetic rates are accepted for parity with external engines but only
// validated here; this engine simulates demography and pedigree structure.
type ForwardConfig struct {
	Model             model.ModelType
	Seed              int64
	Subpops           []SubpopSpec
	MaxAge            int     // nonWF only; individuals die after this age
	MutationRate      float64 // delegated; validated only
	RecombinationRate float64 // delegated; validated only
	SequenceLength    int     // delegated; validated only
}

// Forward is a seeded forward-time engine tracking individuals, ages, and
// parentage. It assigns monotonically increasing pedigree identifiers and
// enumerates subpopulations in declaration order.
type Forward struct {
	cfg     ForwardConfig
	rng     *rand.Rand
	subpops []model.Subpopulation
	nextID  int64
}

const defaultMaxAge = 3

func NewForward(cfg ForwardConfig) (*Forward, error) {
	if !cfg.Model.Valid() {
		return nil, fmt.Errorf("unknown model type: %q", cfg.Model)
	}
	if len(cfg.Subpops) == 0 {
		return nil, fmt.Errorf("at least one subpopulation is required")
	}
	seen := make(map[string]struct{}, len(cfg.Subpops))
	for i, spec := range cfg.Subpops {
		if spec.ID == "" {
			return nil, fmt.Errorf("subpopulation id is required at index %d", i)
		}
		if spec.Size <= 0 {
			return nil, fmt.Errorf("subpopulation %s size must be > 0", spec.ID)
		}
		if _, exists := seen[spec.ID]; exists {
			return nil, fmt.Errorf("duplicate subpopulation: %s", spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("mutation rate must be in [0, 1]")
	}
	if cfg.RecombinationRate < 0 || cfg.RecombinationRate > 1 {
		return nil, fmt.Errorf("recombination rate must be in [0, 1]")
	}
	if cfg.SequenceLength < 0 {
		return nil, fmt.Errorf("sequence length must be >= 0")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}

	f := &Forward{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	f.subpops = make([]model.Subpopulation, 0, len(cfg.Subpops))
	for _, spec := range cfg.Subpops {
		founders := make([]model.Individual, 0, spec.Size)
		for i := 0; i < spec.Size; i++ {
			founders = append(founders, model.Individual{
				PedigreeID: f.allocateID(),
				Age:        0,
				Parent1:    model.NoParent,
				Parent2:    model.NoParent,
			})
		}
		f.subpops = append(f.subpops, model.Subpopulation{ID: spec.ID, Individuals: founders})
	}
	return f, nil
}

func (f *Forward) Name() string { return "forward" }

func (f *Forward) Model() model.ModelType { return f.cfg.Model }

func (f *Forward) allocateID() int64 {
	id := f.nextID
	f.nextID++
	return id
}

// Subpopulations returns a deep copy so callers cannot mutate engine state.
func (f *Forward) Subpopulations(_ context.Context) ([]model.Subpopulation, error) {
	out := make([]model.Subpopulation, 0, len(f.subpops))
	for _, subpop := range f.subpops {
		individuals := make([]model.Individual, len(subpop.Individuals))
		copy(individuals, subpop.Individuals)
		out = append(out, model.Subpopulation{ID: subpop.ID, Individuals: individuals})
	}
	return out, nil
}

func (f *Forward) Advance(ctx context.Context, generation int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if generation < 1 {
		return fmt.Errorf("generation must be >= 1, got %d", generation)
	}

	switch f.cfg.Model {
	case model.ModelWF:
		f.advanceWF()
	case model.ModelNonWF:
		f.advanceNonWF()
	default:
		return fmt.Errorf("unknown model type: %q", f.cfg.Model)
	}
	return nil
}

// advanceWF replaces every subpopulation wholesale: each child draws two
// parents uniformly from the previous generation of its subpopulation.
func (f *Forward) advanceWF() {
	for i, subpop := range f.subpops {
		parents := subpop.Individuals
		next := make([]model.Individual, 0, len(parents))
		for c := 0; c < len(parents); c++ {
			p1 := parents[f.rng.Intn(len(parents))]
			p2 := parents[f.rng.Intn(len(parents))]
			next = append(next, model.Individual{
				PedigreeID: f.allocateID(),
				Age:        0,
				Parent1:    p1.PedigreeID,
				Parent2:    p2.PedigreeID,
			})
		}
		f.subpops[i].Individuals = next
	}
}

// advanceNonWF ages the population, produces a fixed cohort of newborns,
// and culls the oldest individuals back down to the target size. Generations
// overlap: survivors keep their pedigree identifiers across ticks.
func (f *Forward) advanceNonWF() {
	for i, subpop := range f.subpops {
		parents := subpop.Individuals
		target := f.cfg.Subpops[i].Size
		births := target / f.cfg.MaxAge
		if births < 1 {
			births = 1
		}

		next := make([]model.Individual, 0, len(parents)+births)
		for _, ind := range parents {
			ind.Age++
			if ind.Age <= f.cfg.MaxAge {
				next = append(next, ind)
			}
		}
		for len(next) < target || births > 0 {
			if births > 0 {
				births--
			}
			p1 := parents[f.rng.Intn(len(parents))]
			p2 := parents[f.rng.Intn(len(parents))]
			next = append(next, model.Individual{
				PedigreeID: f.allocateID(),
				Age:        0,
				Parent1:    p1.PedigreeID,
				Parent2:    p2.PedigreeID,
			})
		}
		f.subpops[i].Individuals = cullOldest(next, len(next)-target)
	}
}

// cullOldest removes the n oldest individuals, preserving enumeration order
// of the rest. Ties resolve to the earliest-enumerated so the result is
// deterministic.
func cullOldest(individuals []model.Individual, n int) []model.Individual {
	for ; n > 0; n-- {
		oldest := 0
		for idx, ind := range individuals {
			if ind.Age > individuals[oldest].Age {
				oldest = idx
			}
		}
		individuals = append(individuals[:oldest], individuals[oldest+1:]...)
	}
	return individuals
}

type checkpoint struct {
	Engine  string                `json:"engine"`
	Model   model.ModelType       `json:"model"`
	Seed    int64                 `json:"seed"`
	NextID  int64                 `json:"next_id"`
	Subpops []model.Subpopulation `json:"subpopulations"`
}

// WriteCheckpoint exports the current population state as JSON. The file is
// written whole; a failed write leaves no handle open.
func (f *Forward) WriteCheckpoint(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("checkpoint path is required")
	}

	snapshot := checkpoint{
		Engine:  f.Name(),
		Model:   f.cfg.Model,
		Seed:    f.cfg.Seed,
		NextID:  f.nextID,
		Subpops: f.subpops,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
