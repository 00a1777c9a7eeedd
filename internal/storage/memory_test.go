package storage

import (
	"context"
	"testing"

	"stirps/internal/model"
)

func TestMemoryStoreRunSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := model.RunSummary{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:           "run-1",
		EngineName:      "forward",
		Model:           model.ModelWF,
		Generations:     10,
		RecordCount:     200,
	}
	if err := store.SaveRunSummary(ctx, input); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	output, ok, err := store.GetRunSummary(ctx, "run-1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted summary")
	}
	if output.RecordCount != 200 || output.Model != model.ModelWF {
		t.Fatalf("unexpected summary: %+v", output)
	}

	if _, ok, _ := store.GetRunSummary(ctx, "missing"); ok {
		t.Fatal("unexpected summary for unknown run")
	}
}

func TestMemoryStoreListRunSummaries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, id := range []string{"b", "a", "c"} {
		if err := store.SaveRunSummary(ctx, model.RunSummary{RunID: id}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	summaries, err := store.ListRunSummaries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	if summaries[0].RunID != "a" || summaries[2].RunID != "c" {
		t.Fatalf("summaries must sort by run id: %+v", summaries)
	}
}

func TestMemoryStorePedigreeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.PedigreeRecord{{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		Generation:      1,
		Stage:           "early",
		PedigreeID:      7,
		Age:             model.AgeNotTracked,
		Parent1:         model.NoParent,
		Parent2:         model.NoParent,
	}}
	if err := store.SavePedigree(ctx, "run-1", input); err != nil {
		t.Fatalf("save pedigree: %v", err)
	}

	output, ok, err := store.GetPedigree(ctx, "run-1")
	if err != nil {
		t.Fatalf("get pedigree: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted pedigree")
	}
	if len(output) != 1 || output[0].PedigreeID != 7 {
		t.Fatalf("unexpected pedigree: %+v", output)
	}

	// Returned slice must be a copy.
	output[0].PedigreeID = 99
	again, _, _ := store.GetPedigree(ctx, "run-1")
	if again[0].PedigreeID != 7 {
		t.Fatal("store state leaked through returned slice")
	}
}

func TestMemoryStoreGenerationStatsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.GenerationStats{{
		Generation:  1,
		SubpopSizes: map[string]int{"p1": 10},
		TotalSize:   10,
	}}
	if err := store.SaveGenerationStats(ctx, "run-1", input); err != nil {
		t.Fatalf("save stats: %v", err)
	}

	output, ok, err := store.GetGenerationStats(ctx, "run-1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted stats")
	}
	output[0].SubpopSizes["p1"] = 99
	again, _, _ := store.GetGenerationStats(ctx, "run-1")
	if again[0].SubpopSizes["p1"] != 10 {
		t.Fatal("store state leaked through returned map")
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.SaveRunSummary(ctx, model.RunSummary{RunID: "run-1"}); err == nil {
		t.Fatal("expected save on uninitialized store to fail")
	}
	if _, _, err := store.GetRunSummary(ctx, "run-1"); err == nil {
		t.Fatal("expected get on uninitialized store to fail")
	}
	if _, err := store.ListRunSummaries(ctx); err == nil {
		t.Fatal("expected list on uninitialized store to fail")
	}
	if err := store.SavePedigree(ctx, "run-1", nil); err == nil {
		t.Fatal("expected save pedigree on uninitialized store to fail")
	}
	if _, _, err := store.GetPedigree(ctx, "run-1"); err == nil {
		t.Fatal("expected get pedigree on uninitialized store to fail")
	}
	if err := store.SaveGenerationStats(ctx, "run-1", nil); err == nil {
		t.Fatal("expected save stats on uninitialized store to fail")
	}
	if _, _, err := store.GetGenerationStats(ctx, "run-1"); err == nil {
		t.Fatal("expected get stats on uninitialized store to fail")
	}
}

func TestMemoryStoreReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveRunSummary(ctx, model.RunSummary{RunID: "run-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := store.GetRunSummary(ctx, "run-1"); ok {
		t.Fatal("expected reset to drop summaries")
	}
}
