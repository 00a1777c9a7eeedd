package storage

import (
	"context"

	"stirps/internal/model"
)

// Store defines persistence operations for simulation run artifacts.
type Store interface {
	Init(ctx context.Context) error
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error)
	ListRunSummaries(ctx context.Context) ([]model.RunSummary, error)
	SaveGenerationStats(ctx context.Context, runID string, stats []model.GenerationStats) error
	GetGenerationStats(ctx context.Context, runID string) ([]model.GenerationStats, bool, error)
	SavePedigree(ctx context.Context, runID string, records []model.PedigreeRecord) error
	GetPedigree(ctx context.Context, runID string) ([]model.PedigreeRecord, bool, error)
}

// Resetter is implemented by stores that can drop all persisted state.
type Resetter interface {
	Reset(ctx context.Context) error
}
