package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stirps/internal/engine"
	"stirps/internal/model"
	"stirps/internal/pedigree"
	"stirps/internal/storage"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	driver := NewDriver(Config{Store: storage.NewMemoryStore()})
	if err := driver.Init(context.Background()); err != nil {
		t.Fatalf("init driver: %v", err)
	}
	return driver
}

func newWFEngine(t *testing.T, popSize int) *engine.Forward {
	t.Helper()
	eng, err := engine.NewForward(engine.ForwardConfig{
		Model:   model.ModelWF,
		Seed:    11,
		Subpops: []engine.SubpopSpec{{ID: "p1", Size: popSize}},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func TestRunSimulationWF(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)
	logPath := filepath.Join(t.TempDir(), "pedigree.log")

	const (
		popSize     = 10
		generations = 10
	)
	result, err := driver.RunSimulation(ctx, RunConfig{
		RunID:       "wf-run",
		Engine:      newWFEngine(t, popSize),
		Generations: generations,
		PedigreeLog: logPath,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// One row per individual per stage per generation.
	wantRows := generations * 2 * popSize
	if result.RecordCount != wantRows {
		t.Fatalf("record count = %d, want %d", result.RecordCount, wantRows)
	}
	if result.Generations != generations {
		t.Fatalf("generations = %d, want %d", result.Generations, generations)
	}

	records, err := pedigree.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if err := pedigree.Validate(records); err != nil {
		t.Fatalf("validate log: %v", err)
	}
	if len(records) != wantRows {
		t.Fatalf("log rows = %d, want %d", len(records), wantRows)
	}
	for i, record := range records {
		if record.Age != model.AgeNotTracked {
			t.Fatalf("record %d: age = %d, want %d in WF model", i, record.Age, model.AgeNotTracked)
		}
		if record.Generation > generations {
			t.Fatalf("record %d: generation %d past the final generation", i, record.Generation)
		}
	}
	if last := records[len(records)-1]; last.Generation != generations || last.Stage != "late" {
		t.Fatalf("run ended at generation %d stage %s", last.Generation, last.Stage)
	}

	summary, ok, err := driver.store.GetRunSummary(ctx, "wf-run")
	if err != nil || !ok {
		t.Fatalf("get summary: ok=%v err=%v", ok, err)
	}
	if summary.RecordCount != wantRows || summary.Model != model.ModelWF || summary.Generations != generations {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	persisted, ok, err := driver.store.GetPedigree(ctx, "wf-run")
	if err != nil || !ok {
		t.Fatalf("get pedigree: ok=%v err=%v", ok, err)
	}
	if len(persisted) != wantRows {
		t.Fatalf("persisted rows = %d, want %d", len(persisted), wantRows)
	}
	for i, record := range persisted {
		if record.Age != model.AgeNotTracked {
			t.Fatalf("persisted record %d: age = %d, want %d", i, record.Age, model.AgeNotTracked)
		}
	}

	stats, ok, err := driver.store.GetGenerationStats(ctx, "wf-run")
	if err != nil || !ok {
		t.Fatalf("get stats: ok=%v err=%v", ok, err)
	}
	if len(stats) != generations {
		t.Fatalf("stats entries = %d, want %d", len(stats), generations)
	}
	for _, gen := range stats {
		if gen.TotalSize != popSize || gen.SubpopSizes["p1"] != popSize {
			t.Fatalf("generation %d: unexpected sizes %+v", gen.Generation, gen)
		}
	}
}

func TestRunSimulationNonWFRecordsAges(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)
	logPath := filepath.Join(t.TempDir(), "pedigree.log")

	eng, err := engine.NewForward(engine.ForwardConfig{
		Model:   model.ModelNonWF,
		Seed:    3,
		Subpops: []engine.SubpopSpec{{ID: "p1", Size: 8}},
		MaxAge:  2,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if _, err := driver.RunSimulation(ctx, RunConfig{
		RunID:       "nonwf-run",
		Engine:      eng,
		Generations: 5,
		PedigreeLog: logPath,
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	records, err := pedigree.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	survivors := 0
	for _, record := range records {
		if record.Age < 0 {
			t.Fatalf("non-overlapping age sentinel %d in nonWF log", record.Age)
		}
		if record.Age > 0 {
			survivors++
		}
	}
	if survivors == 0 {
		t.Fatal("expected surviving individuals with age > 0")
	}
}

func TestRunSimulationDeterministic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	run := func(name string) []pedigree.Record {
		driver := newTestDriver(t)
		logPath := filepath.Join(dir, name)
		if _, err := driver.RunSimulation(ctx, RunConfig{
			RunID:       name,
			Engine:      newWFEngine(t, 6),
			Generations: 4,
			PedigreeLog: logPath,
		}); err != nil {
			t.Fatalf("run %s: %v", name, err)
		}
		records, err := pedigree.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return records
	}

	first := run("a.log")
	second := run("b.log")
	if len(first) != len(second) {
		t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("row %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

// failingEngine delegates to a real engine until the trigger generation.
type failingEngine struct {
	*engine.Forward
	failAt int
}

func (f *failingEngine) Advance(ctx context.Context, generation int) error {
	if generation == f.failAt {
		return fmt.Errorf("simulated engine failure")
	}
	return f.Forward.Advance(ctx, generation)
}

func TestRunSimulationEngineFailureReleasesLog(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)
	logPath := filepath.Join(t.TempDir(), "pedigree.log")

	const popSize = 5
	eng := &failingEngine{Forward: newWFEngine(t, popSize), failAt: 3}

	_, err := driver.RunSimulation(ctx, RunConfig{
		RunID:       "doomed",
		Engine:      eng,
		Generations: 10,
		PedigreeLog: logPath,
	})
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if !strings.Contains(err.Error(), "generation 3 late") {
		t.Fatalf("error %q does not name the failing stage", err)
	}
	if !strings.Contains(err.Error(), "simulated engine failure") {
		t.Fatalf("error %q does not wrap the engine failure", err)
	}

	// Rows written before the failure stay durable and the handle is
	// released, so the file reads back cleanly.
	records, err := pedigree.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log after failure: %v", err)
	}
	// Generations 1-2 complete, generation 3 logged its early stage only.
	wantRows := 2*2*popSize + popSize
	if len(records) != wantRows {
		t.Fatalf("rows after failure = %d, want %d", len(records), wantRows)
	}
	if last := records[len(records)-1]; last.Generation != 3 || last.Stage != "early" {
		t.Fatalf("last row is generation %d stage %s", last.Generation, last.Stage)
	}

	// A failed run persists nothing.
	if _, ok, _ := driver.store.GetRunSummary(ctx, "doomed"); ok {
		t.Fatal("unexpected summary for failed run")
	}

	// The run slot is freed even on failure.
	if err := driver.StopRun("doomed"); err == nil {
		t.Fatal("expected stop on finished run to fail")
	}
}

func TestRunSimulationCheckpoints(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)
	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "state.json")

	if _, err := driver.RunSimulation(ctx, RunConfig{
		Engine:             newWFEngine(t, 4),
		Generations:        4,
		PedigreeLog:        filepath.Join(dir, "pedigree.log"),
		CheckpointPath:     checkpointPath,
		CheckpointInterval: 2,
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := os.Stat(checkpointPath); err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}
}

func TestRunSimulationAssignsRunID(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	result, err := driver.RunSimulation(ctx, RunConfig{
		Engine:      newWFEngine(t, 3),
		Generations: 2,
		PedigreeLog: filepath.Join(t.TempDir(), "pedigree.log"),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected generated run id")
	}
	if _, ok, _ := driver.store.GetRunSummary(ctx, result.RunID); !ok {
		t.Fatal("summary not stored under the generated run id")
	}
}

func TestRunSimulationValidation(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)
	logPath := filepath.Join(t.TempDir(), "pedigree.log")

	cases := []struct {
		name string
		cfg  RunConfig
	}{
		{name: "nil engine", cfg: RunConfig{Generations: 1, PedigreeLog: logPath}},
		{name: "zero generations", cfg: RunConfig{Engine: newWFEngine(t, 2), PedigreeLog: logPath}},
		{name: "no log path", cfg: RunConfig{Engine: newWFEngine(t, 2), Generations: 1}},
		{name: "negative interval", cfg: RunConfig{
			Engine: newWFEngine(t, 2), Generations: 1, PedigreeLog: logPath, CheckpointInterval: -1,
		}},
		{name: "interval without path", cfg: RunConfig{
			Engine: newWFEngine(t, 2), Generations: 1, PedigreeLog: logPath, CheckpointInterval: 2,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := driver.RunSimulation(ctx, tc.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestRunSimulationRequiresInit(t *testing.T) {
	driver := NewDriver(Config{Store: storage.NewMemoryStore()})
	_, err := driver.RunSimulation(context.Background(), RunConfig{
		Engine:      newWFEngine(t, 2),
		Generations: 1,
		PedigreeLog: filepath.Join(t.TempDir(), "pedigree.log"),
	})
	if err == nil {
		t.Fatal("expected uninitialized driver to refuse runs")
	}
}

func TestRunCommandsForUnknownRun(t *testing.T) {
	driver := newTestDriver(t)
	if err := driver.PauseRun("ghost"); err == nil {
		t.Fatal("expected pause on unknown run to fail")
	}
	if err := driver.ContinueRun("ghost"); err == nil {
		t.Fatal("expected continue on unknown run to fail")
	}
	if err := driver.StopRun(""); err == nil {
		t.Fatal("expected empty run id to be rejected")
	}
}
