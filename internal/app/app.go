// Package app runs the apply workflow: compile a DSL file, archive and
// publish the compiled payload, upload it and optionally launch it. Progress
// is kept in a state file so a failed run resumes where it stopped.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"calmdsl/internal/compiler"
	"calmdsl/internal/localfile"
	"calmdsl/internal/parser"
	"calmdsl/internal/ui"
	"calmdsl/pkg/blueprint"
)

// Runner runs apply workflows.
type Runner struct {
	factory  *ProviderFactory
	console  *ui.Console
	resolver compiler.PlatformResolver
	home     string
}

// NewRunner returns a runner. resolver may be nil, in which case platform
// references are resolved by name only. home is searched for .local secrets
// after the DSL directory.
func NewRunner(factory *ProviderFactory, console *ui.Console, resolver compiler.PlatformResolver, home string) *Runner {
	if console == nil {
		console = ui.NewConsole()
	}
	return &Runner{factory: factory, console: console, resolver: resolver, home: home}
}

// workflow carries what the stages of one run share.
type workflow struct {
	opts         Options
	bundle       *blueprint.Bundle
	factory      *ProviderFactory
	console      *ui.Console
	compilerOpts compiler.Options
	stateFile    string

	// docs is set by the compile stage.
	docs []Document
}

// archiveDir is the archive subdirectory of the DSL file: its base name
// without extension.
func (w *workflow) archiveDir() string {
	base := filepath.Base(w.opts.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// checkpoint saves the state in the middle of a stage.
func (w *workflow) checkpoint(state *ExecutionState) error {
	if w.opts.DryRun {
		return nil
	}
	return saveState(w.stateFile, state)
}

// buildStages returns the stages of a run, in order.
func buildStages(w *workflow) []Stage {
	return []Stage{
		&CompileStage{w: w},
		&ArchiveStage{w: w},
		&PublishStage{w: w},
		&UploadStage{w: w},
		&LaunchStage{w: w},
	}
}

// Apply runs the workflow for opts.Path, resuming a previous failed run of
// the same file when its state file is present.
func (r *Runner) Apply(ctx context.Context, opts Options) error {
	if opts.Path == "" {
		return errors.New("no DSL file given")
	}
	if opts.Launch && opts.AppName == "" {
		return errors.New("an application name is required to launch")
	}
	slog.Info("Starting apply workflow", "path", opts.Path, "dryRun", opts.DryRun, "launch", opts.Launch)

	stateFile := statePath(opts.Path)
	state, err := loadState(stateFile)
	if err != nil {
		return fmt.Errorf("failed to load execution state: %w", err)
	}

	isResume := state != nil
	if !isResume {
		state = newState(opts.Path)
		slog.Info("Starting new apply run", "runId", state.RunID, "path", opts.Path)
	} else {
		r.console.PrintInfo(fmt.Sprintf("📋 State file found. Resuming from stage: %s", state.nextStage()))
		slog.Info("Resuming apply run", "runId", state.RunID, "nextStage", state.nextStage(), "lastStage", state.LastCompletedStage)
	}

	if opts.DryRun {
		r.console.PrintInfo("🔍 DRY RUN MODE - No actual changes will be made")
	}

	bundle, err := parser.Parse(opts.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}

	w := &workflow{
		opts:    opts,
		bundle:  bundle,
		factory: r.factory,
		console: r.console,
		compilerOpts: compiler.Options{
			Deterministic: true,
			Resolver:      r.resolver,
			Files:         localfile.NewReader(nil, bundle.Dir, r.home),
		},
		stateFile: stateFile,
	}

	for i, stage := range buildStages(w) {
		if shouldSkipStage(state, stage.Name()) {
			r.console.PrintInfo(fmt.Sprintf("⏭️  Stage %d: %s (skipped - already completed)", i+1, stage.Name()))
			continue
		}
		r.console.PrintInfo(fmt.Sprintf("🚧 Stage %d: %s", i+1, stage.Name()))
		if err := stage.Execute(ctx, state); err != nil {
			if !opts.DryRun {
				if serr := saveState(stateFile, state); serr != nil {
					slog.Warn("Failed to save state after stage failure", "stage", stage.Name(), "error", serr)
				}
			}
			return &StageError{Stage: stage.Name(), Err: err}
		}

		state.markCompleted(stage.Name())
		if !opts.DryRun {
			if err := saveState(stateFile, state); err != nil {
				return fmt.Errorf("failed to save state after %s: %w", stage.Name(), err)
			}
		}
	}

	state.markCompleted(StageCompleted)
	if !opts.DryRun {
		if opts.RetainState {
			if err := saveState(stateFile, state); err != nil {
				slog.Warn("Failed to save final state", "error", err)
			} else {
				slog.Info("State file retained for auditing", "file", stateFile)
			}
		} else if err := removeStateFile(stateFile); err != nil {
			slog.Warn("Failed to clean up state file", "error", err)
		}
	}

	if opts.DryRun {
		r.console.PrintSuccess("🎉 DRY RUN COMPLETED - All stages simulated successfully!")
	} else {
		r.console.PrintSuccess(fmt.Sprintf("🎉 Applied %s (%d document(s))", opts.Path, len(w.docs)))
	}
	slog.Info("Apply workflow completed successfully", "runId", state.RunID, "documents", len(w.docs), "dryRun", opts.DryRun)
	return nil
}
