// Package platform wires the scheduler, engine, pedigree logger, and store
// into complete simulation runs.
package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"stirps/internal/ctxlog"
	"stirps/internal/engine"
	"stirps/internal/model"
	"stirps/internal/pedigree"
	"stirps/internal/sched"
	"stirps/internal/storage"
)

type Config struct {
	Store storage.Store
}

// RunConfig describes one simulation run at the platform level. The engine
// arrives fully constructed; the driver only drives and observes it.
type RunConfig struct {
	RunID              string
	Engine             engine.Engine
	Seed               int64
	Generations        int
	PedigreeLog        string
	CheckpointPath     string
	CheckpointInterval int
	Control            chan sched.Command
}

type RunResult struct {
	RunID       string
	Generations int
	RecordCount int
	Stats       []model.GenerationStats
}

// Driver owns the store and tracks active runs so they can be paused,
// continued, or stopped from outside.
type Driver struct {
	store storage.Store

	mu      sync.RWMutex
	started bool
	runs    map[string]chan sched.Command
}

func NewDriver(cfg Config) *Driver {
	return &Driver{
		store: cfg.Store,
		runs:  make(map[string]chan sched.Command),
	}
}

func (d *Driver) Init(ctx context.Context) error {
	if d.store == nil {
		return fmt.Errorf("store is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	if err := d.store.Init(ctx); err != nil {
		return err
	}
	d.started = true
	return nil
}

func (d *Driver) Reset(ctx context.Context) error {
	if resetter, ok := d.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return d.Init(ctx)
}

func (d *Driver) Started() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.started
}

// RunSimulation executes one run to completion: header at generation 1
// early, one pedigree row per individual per stage, reproduction between the
// stages, terminal signal at the final generation's late stage, optional
// checkpoints, then artifact persistence. The pedigree log handle is
// released on every exit path, including failures, so rows written before
// an error remain durable.
func (d *Driver) RunSimulation(ctx context.Context, cfg RunConfig) (RunResult, error) {
	if cfg.Engine == nil {
		return RunResult{}, fmt.Errorf("engine is required")
	}
	if cfg.Generations <= 0 {
		return RunResult{}, fmt.Errorf("generations must be > 0")
	}
	if cfg.PedigreeLog == "" {
		return RunResult{}, fmt.Errorf("pedigree log path is required")
	}
	if cfg.CheckpointInterval < 0 {
		return RunResult{}, fmt.Errorf("checkpoint interval must be >= 0")
	}
	if cfg.CheckpointInterval > 0 {
		if cfg.CheckpointPath == "" {
			return RunResult{}, fmt.Errorf("checkpoint path is required when checkpointing")
		}
		if _, ok := cfg.Engine.(engine.Checkpointer); !ok {
			return RunResult{}, fmt.Errorf("engine %s does not support checkpoints", cfg.Engine.Name())
		}
	}
	if !d.Started() {
		return RunResult{}, fmt.Errorf("driver is not initialized")
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	control := cfg.Control
	if control == nil {
		control = make(chan sched.Command, 16)
	}
	if err := d.registerRunControl(runID, control); err != nil {
		return RunResult{}, err
	}
	defer d.unregisterRunControl(runID)

	eng := cfg.Engine
	ageTracked := eng.Model().OverlappingGenerations()
	logger, err := pedigree.NewLogger(cfg.PedigreeLog, ageTracked)
	if err != nil {
		return RunResult{}, err
	}
	defer func() {
		_ = logger.Close()
	}()

	var (
		records   []model.PedigreeRecord
		stats     []model.GenerationStats
		executed  int
		scheduler = sched.New(sched.Config{Control: control})
	)

	logStage := func(ctx context.Context, tick sched.Tick) error {
		subpops, err := eng.Subpopulations(ctx)
		if err != nil {
			return fmt.Errorf("enumerate subpopulations: %w", err)
		}
		for _, subpop := range subpops {
			for _, ind := range subpop.Individuals {
				if err := logger.WriteRecord(tick.Generation, string(tick.Stage), ind); err != nil {
					return err
				}
				age := model.AgeNotTracked
				if ageTracked {
					age = ind.Age
				}
				records = append(records, model.PedigreeRecord{
					VersionedRecord: model.VersionedRecord{
						SchemaVersion: storage.CurrentSchemaVersion,
						CodecVersion:  storage.CurrentCodecVersion,
					},
					Generation: tick.Generation,
					Stage:      string(tick.Stage),
					PedigreeID: ind.PedigreeID,
					Age:        age,
					Parent1:    ind.Parent1,
					Parent2:    ind.Parent2,
				})
			}
		}
		return nil
	}

	if err := scheduler.Register(sched.Always(), sched.StageInitialize, func(ctx context.Context, _ sched.Tick) error {
		ctxlog.FromContext(ctx).Info("starting run",
			"run_id", runID,
			"engine", eng.Name(),
			"model", string(eng.Model()),
			"generations", cfg.Generations,
		)
		return nil
	}); err != nil {
		return RunResult{}, err
	}

	if err := scheduler.Register(sched.Exactly(1), sched.StageEarly, func(_ context.Context, _ sched.Tick) error {
		return logger.WriteHeader()
	}); err != nil {
		return RunResult{}, err
	}
	if err := scheduler.Register(sched.From(1), sched.StageEarly, logStage); err != nil {
		return RunResult{}, err
	}

	// Reproduction runs between the stages: first late callback.
	if err := scheduler.Register(sched.From(1), sched.StageLate, func(ctx context.Context, tick sched.Tick) error {
		return eng.Advance(ctx, tick.Generation)
	}); err != nil {
		return RunResult{}, err
	}
	if err := scheduler.Register(sched.From(1), sched.StageLate, logStage); err != nil {
		return RunResult{}, err
	}
	if err := scheduler.Register(sched.From(1), sched.StageLate, func(ctx context.Context, tick sched.Tick) error {
		subpops, err := eng.Subpopulations(ctx)
		if err != nil {
			return fmt.Errorf("enumerate subpopulations: %w", err)
		}
		stats = append(stats, summarizeGeneration(tick.Generation, subpops))
		executed = tick.Generation
		return nil
	}); err != nil {
		return RunResult{}, err
	}
	if cfg.CheckpointInterval > 0 {
		checkpointer := cfg.Engine.(engine.Checkpointer)
		interval := cfg.CheckpointInterval
		if err := scheduler.Register(sched.From(interval), sched.StageLate, func(ctx context.Context, tick sched.Tick) error {
			if tick.Generation%interval != 0 {
				return nil
			}
			return checkpointer.WriteCheckpoint(ctx, cfg.CheckpointPath)
		}); err != nil {
			return RunResult{}, err
		}
	}
	if err := scheduler.Register(sched.Exactly(cfg.Generations), sched.StageLate, func(_ context.Context, tick sched.Tick) error {
		tick.Finish()
		return nil
	}); err != nil {
		return RunResult{}, err
	}

	if err := scheduler.Run(ctx); err != nil {
		return RunResult{}, err
	}
	if err := logger.Close(); err != nil {
		return RunResult{}, err
	}

	summary := model.RunSummary{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:       runID,
		EngineName:  eng.Name(),
		Model:       eng.Model(),
		Seed:        cfg.Seed,
		Generations: executed,
		LogPath:     cfg.PedigreeLog,
		RecordCount: len(records),
	}
	if err := d.store.SaveRunSummary(ctx, summary); err != nil {
		return RunResult{}, err
	}
	if err := d.store.SaveGenerationStats(ctx, runID, stats); err != nil {
		return RunResult{}, err
	}
	if err := d.store.SavePedigree(ctx, runID, records); err != nil {
		return RunResult{}, err
	}

	ctxlog.FromContext(ctx).Info("run complete",
		"run_id", runID,
		"generations", executed,
		"records", len(records),
	)

	return RunResult{
		RunID:       runID,
		Generations: executed,
		RecordCount: len(records),
		Stats:       stats,
	}, nil
}

func summarizeGeneration(generation int, subpops []model.Subpopulation) model.GenerationStats {
	sizes := make(map[string]int, len(subpops))
	total := 0
	ageSum := 0
	offspring := 0
	for _, subpop := range subpops {
		sizes[subpop.ID] = len(subpop.Individuals)
		total += len(subpop.Individuals)
		for _, ind := range subpop.Individuals {
			ageSum += ind.Age
			if ind.Age == 0 {
				offspring++
			}
		}
	}
	stats := model.GenerationStats{
		Generation:   generation,
		SubpopSizes:  sizes,
		TotalSize:    total,
		NewOffspring: offspring,
	}
	if total > 0 {
		stats.MeanAge = float64(ageSum) / float64(total)
	}
	return stats
}

func (d *Driver) PauseRun(runID string) error {
	return d.sendRunCommand(runID, sched.CommandPause)
}

func (d *Driver) ContinueRun(runID string) error {
	return d.sendRunCommand(runID, sched.CommandContinue)
}

func (d *Driver) StopRun(runID string) error {
	return d.sendRunCommand(runID, sched.CommandStop)
}

func (d *Driver) registerRunControl(runID string, control chan sched.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return fmt.Errorf("driver is not initialized")
	}
	if _, exists := d.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	d.runs[runID] = control
	return nil
}

func (d *Driver) unregisterRunControl(runID string) {
	d.mu.Lock()
	delete(d.runs, runID)
	d.mu.Unlock()
}

func (d *Driver) sendRunCommand(runID string, cmd sched.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	d.mu.RLock()
	control, ok := d.runs[runID]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}
