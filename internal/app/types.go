package app

import (
	"context"
	"errors"
	"fmt"
)

// ErrParse is returned by Apply when the DSL file cannot be parsed.
var ErrParse = errors.New("DSL parsing failed")

// Stage represents a single stage in the apply workflow.
// Each stage implements this interface to provide a name and execution logic.
type Stage interface {
	Name() string
	Execute(ctx context.Context, state *ExecutionState) error
}

// Options configures an apply run.
type Options struct {
	// Path is the DSL file to apply.
	Path        string
	DryRun      bool
	RetainState bool

	// Launch deploys the first blueprint of the file as AppName once uploaded.
	Launch  bool
	AppName string
	Profile string

	// Project is used for documents that name no project.
	Project string
}

// StageError reports the stage an apply run failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
