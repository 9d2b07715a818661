package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Stages of the apply workflow, in execution order.
const (
	StageCompile   = "compile"
	StageArchive   = "archive"
	StagePublish   = "publish"
	StageUpload    = "upload"
	StageLaunch    = "launch"
	StageCompleted = "completed"
)

var stageOrder = []string{StageCompile, StageArchive, StagePublish, StageUpload, StageLaunch, StageCompleted}

// ExecutionState represents the state of an apply run
type ExecutionState struct {
	SchemaVersion      string    `json:"schema_version"`
	RunID              string    `json:"run_id"`
	LastCompletedStage string    `json:"last_completed_stage"`
	DSLPath            string    `json:"dsl_path"`
	PayloadHash        string    `json:"payload_hash"`
	CreatedAt          time.Time `json:"created_at"`
	LastUpdatedAt      time.Time `json:"last_updated_at"`

	ArchiveCommit string `json:"archive_commit,omitempty"`
	PublishedURL  string `json:"published_url,omitempty"`
	// Entities maps "<kind>/<name>" to the UUID of every uploaded document.
	Entities map[string]string `json:"entities,omitempty"`
	AppUUID  string            `json:"app_uuid,omitempty"`
}

const (
	StateFileName      = ".calm.state.json"
	StateSchemaVersion = "1.0"
)

// statePath returns the state file of a DSL file: it lives next to it.
func statePath(dslPath string) string {
	return filepath.Join(filepath.Dir(dslPath), StateFileName)
}

// loadState attempts to load the execution state from path.
// Returns nil if the file doesn't exist (fresh start).
func loadState(path string) (*ExecutionState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.SchemaVersion != StateSchemaVersion {
		return nil, fmt.Errorf("state file %s has schema version %q, expected %q", path, state.SchemaVersion, StateSchemaVersion)
	}
	return &state, nil
}

// saveState persists the execution state to path.
func saveState(path string, state *ExecutionState) error {
	state.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// removeStateFile removes the state file after successful completion
func removeStateFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// newState creates a new execution state for a fresh run
func newState(dslPath string) *ExecutionState {
	now := time.Now()
	return &ExecutionState{
		SchemaVersion: StateSchemaVersion,
		RunID:         uuid.New().String(),
		DSLPath:       dslPath,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// reset starts the run over, keeping the DSL path.
func (s *ExecutionState) reset() {
	*s = *newState(s.DSLPath)
}

func stageIndex(stage string) int {
	return slices.Index(stageOrder, stage)
}

// shouldSkipStage reports whether stage already completed in a previous
// attempt of this run. Compile never skips: later stages need its output.
func shouldSkipStage(state *ExecutionState, stage string) bool {
	if state == nil || state.LastCompletedStage == "" || stage == StageCompile {
		return false
	}
	idx := stageIndex(stage)
	return idx >= 0 && idx <= stageIndex(state.LastCompletedStage)
}

// markCompleted records stage as done. It never moves the state backwards.
func (s *ExecutionState) markCompleted(stage string) {
	if stageIndex(stage) > stageIndex(s.LastCompletedStage) {
		s.LastCompletedStage = stage
	}
}

// nextStage returns the first stage that has not completed yet.
func (s *ExecutionState) nextStage() string {
	if s == nil || s.LastCompletedStage == "" {
		return StageCompile
	}
	idx := stageIndex(s.LastCompletedStage)
	if idx < 0 || idx+1 >= len(stageOrder) {
		return StageCompleted
	}
	return stageOrder[idx+1]
}

func (s *ExecutionState) recordEntity(kind, name, uuid string) {
	if s.Entities == nil {
		s.Entities = make(map[string]string)
	}
	s.Entities[kind+"/"+name] = uuid
}
