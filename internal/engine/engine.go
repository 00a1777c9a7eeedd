// Package engine defines the boundary with the forward-time simulation
// engine: the driver only enumerates population state through it and asks it
// to advance one generation at a time. Genetics (mutation, recombination,
// nucleotide models) live entirely behind this boundary.
package engine

import (
	"context"

	"stirps/internal/model"
)

// Engine is the contract the scheduler's callbacks drive and observe.
// Enumeration order of subpopulations and of individuals within one must be
// stable for a fixed seed so the pedigree log is deterministic.
type Engine interface {
	Name() string
	Model() model.ModelType
	// Subpopulations returns a snapshot of the live population state.
	Subpopulations(ctx context.Context) ([]model.Subpopulation, error)
	// Advance runs one generation of reproduction. It is called between the
	// early and late stages of the given generation.
	Advance(ctx context.Context, generation int) error
}

// Checkpointer is implemented by engines that can export a state snapshot.
// The snapshot format belongs to the engine.
type Checkpointer interface {
	WriteCheckpoint(ctx context.Context, path string) error
}
