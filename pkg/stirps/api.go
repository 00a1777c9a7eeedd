// Package stirps is the public facade over the simulation driver: it owns a
// store and exposes run execution, run control, and artifact queries.
package stirps

import (
	"context"
	"fmt"

	"stirps/internal/config"
	"stirps/internal/engine"
	"stirps/internal/model"
	"stirps/internal/platform"
	"stirps/internal/sched"
	"stirps/internal/storage"
)

const defaultDBPath = "stirps.db"

type Options struct {
	StoreKind string
	DBPath    string
}

// RunRequest describes one simulation run.
type RunRequest struct {
	RunID              string
	Model              string
	Seed               int64
	Generations        int
	Subpops            []engine.SubpopSpec
	MaxAge             int
	PedigreeLog        string
	CheckpointPath     string
	CheckpointInterval int
	MutationRate       float64
	RecombinationRate  float64
	SequenceLength     int
	Control            chan sched.Command
}

// RequestFromConfig maps a loaded run configuration onto a RunRequest.
func RequestFromConfig(cfg config.RunConfig) RunRequest {
	subpops := make([]engine.SubpopSpec, 0, len(cfg.Subpops))
	for _, spec := range cfg.Subpops {
		subpops = append(subpops, engine.SubpopSpec{ID: spec.ID, Size: spec.Size})
	}
	return RunRequest{
		RunID:              cfg.RunID,
		Model:              cfg.Model,
		Seed:               cfg.Seed,
		Generations:        cfg.Generations,
		Subpops:            subpops,
		MaxAge:             cfg.MaxAge,
		PedigreeLog:        cfg.PedigreeLog,
		CheckpointPath:     cfg.CheckpointPath,
		CheckpointInterval: cfg.CheckpointInterval,
		MutationRate:       cfg.MutationRate,
		RecombinationRate:  cfg.RecombinationRate,
		SequenceLength:     cfg.SequenceLength,
	}
}

type RunResult = platform.RunResult

type Client struct {
	store  storage.Store
	driver *platform.Driver
}

func New(ctx context.Context, opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}

	driver := platform.NewDriver(platform.Config{Store: store})
	if err := driver.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, err
	}
	return &Client{store: store, driver: driver}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Reset drops all persisted run artifacts.
func (c *Client) Reset(ctx context.Context) error {
	return c.driver.Reset(ctx)
}

// Run builds the engine for the request and executes the simulation.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if req.Generations <= 0 {
		return RunResult{}, fmt.Errorf("generations must be > 0")
	}

	eng, err := engine.NewForward(engine.ForwardConfig{
		Model:             model.ModelType(req.Model),
		Seed:              req.Seed,
		Subpops:           req.Subpops,
		MaxAge:            req.MaxAge,
		MutationRate:      req.MutationRate,
		RecombinationRate: req.RecombinationRate,
		SequenceLength:    req.SequenceLength,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("build engine: %w", err)
	}

	return c.driver.RunSimulation(ctx, platform.RunConfig{
		RunID:              req.RunID,
		Engine:             eng,
		Seed:               req.Seed,
		Generations:        req.Generations,
		PedigreeLog:        req.PedigreeLog,
		CheckpointPath:     req.CheckpointPath,
		CheckpointInterval: req.CheckpointInterval,
		Control:            req.Control,
	})
}

func (c *Client) RunSummaries(ctx context.Context) ([]model.RunSummary, error) {
	return c.store.ListRunSummaries(ctx)
}

func (c *Client) RunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error) {
	return c.store.GetRunSummary(ctx, runID)
}

func (c *Client) Pedigree(ctx context.Context, runID string) ([]model.PedigreeRecord, bool, error) {
	return c.store.GetPedigree(ctx, runID)
}

func (c *Client) GenerationStats(ctx context.Context, runID string) ([]model.GenerationStats, bool, error) {
	return c.store.GetGenerationStats(ctx, runID)
}

func (c *Client) PauseRun(runID string) error {
	return c.driver.PauseRun(runID)
}

func (c *Client) ContinueRun(runID string) error {
	return c.driver.ContinueRun(runID)
}

func (c *Client) StopRun(runID string) error {
	return c.driver.StopRun(runID)
}
