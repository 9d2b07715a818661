package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShouldSkipStage(t *testing.T) {
	tests := []struct {
		name  string
		last  string
		stage string
		want  bool
	}{
		{"fresh run", "", StageArchive, false},
		{"compile always runs", StageUpload, StageCompile, false},
		{"completed stage", StagePublish, StageArchive, true},
		{"last completed stage", StagePublish, StagePublish, true},
		{"next stage", StagePublish, StageUpload, false},
		{"unknown stage", StageUpload, "deploy", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &ExecutionState{LastCompletedStage: tt.last}
			if got := shouldSkipStage(state, tt.stage); got != tt.want {
				t.Errorf("shouldSkipStage(%q, %q) = %v, want %v", tt.last, tt.stage, got, tt.want)
			}
		})
	}

	if shouldSkipStage(nil, StageUpload) {
		t.Error("nil state should not skip anything")
	}
}

func TestExecutionState_MarkCompletedAndNextStage(t *testing.T) {
	state := newState("blueprint.yaml")
	if got := state.nextStage(); got != StageCompile {
		t.Errorf("nextStage() = %q, want %q", got, StageCompile)
	}

	state.markCompleted(StageArchive)
	if got := state.nextStage(); got != StagePublish {
		t.Errorf("nextStage() = %q, want %q", got, StagePublish)
	}

	// A re-run earlier stage does not move the state back.
	state.markCompleted(StageCompile)
	if state.LastCompletedStage != StageArchive {
		t.Errorf("LastCompletedStage = %q, want %q", state.LastCompletedStage, StageArchive)
	}

	state.markCompleted(StageCompleted)
	if got := state.nextStage(); got != StageCompleted {
		t.Errorf("nextStage() = %q, want %q", got, StageCompleted)
	}
}

func TestExecutionState_Reset(t *testing.T) {
	state := newState("dsl/blueprint.yaml")
	runID := state.RunID
	state.markCompleted(StageUpload)
	state.recordEntity("blueprint", "web", "bp-1")
	state.PayloadHash = "abc"

	state.reset()
	if state.RunID == runID {
		t.Error("reset should start a new run ID")
	}
	if state.DSLPath != "dsl/blueprint.yaml" {
		t.Errorf("DSLPath = %q, want it kept", state.DSLPath)
	}
	if state.LastCompletedStage != "" || state.PayloadHash != "" || len(state.Entities) != 0 {
		t.Errorf("reset left progress behind: %+v", state)
	}
}

func TestStateFile_LoadSaveRemove(t *testing.T) {
	dir := t.TempDir()
	path := statePath(filepath.Join(dir, "blueprint.yaml"))
	if path != filepath.Join(dir, StateFileName) {
		t.Fatalf("statePath() = %q", path)
	}

	state, err := loadState(path)
	if err != nil {
		t.Fatalf("loadState() on a missing file: %v", err)
	}
	if state != nil {
		t.Fatal("expected nil state for a missing file")
	}

	original := newState("blueprint.yaml")
	original.markCompleted(StageArchive)
	original.ArchiveCommit = "deadbeef"
	original.recordEntity("runbook", "cleanup", "rb-1")
	if err := saveState(path, original); err != nil {
		t.Fatalf("saveState() error: %v", err)
	}

	loaded, err := loadState(path)
	if err != nil {
		t.Fatalf("loadState() error: %v", err)
	}
	if loaded.RunID != original.RunID || loaded.LastCompletedStage != StageArchive || loaded.ArchiveCommit != "deadbeef" {
		t.Errorf("loaded state = %+v, want %+v", loaded, original)
	}
	if loaded.Entities["runbook/cleanup"] != "rb-1" {
		t.Errorf("Entities = %v", loaded.Entities)
	}

	if err := removeStateFile(path); err != nil {
		t.Fatalf("removeStateFile() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("state file still exists")
	}
	if err := removeStateFile(path); err != nil {
		t.Errorf("removing a missing state file should not fail: %v", err)
	}
}

func TestLoadState_Invalid(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadState(corrupt); err == nil {
		t.Error("expected an error for a corrupt state file")
	}

	old := filepath.Join(dir, "old.json")
	if err := os.WriteFile(old, []byte(`{"schema_version": "0.1", "run_id": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadState(old); err == nil {
		t.Error("expected an error for an unknown schema version")
	}
}
