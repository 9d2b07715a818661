package app

import (
	"context"
	"fmt"
	"log/slog"

	"calmdsl/internal/compiler"
)

// CompileStage compiles every document of the DSL file. A payload that
// differs from the one recorded in the state starts a new run.
type CompileStage struct {
	w *workflow
}

// Name returns the name of the stage
func (s *CompileStage) Name() string {
	return StageCompile
}

// Execute performs the compile stage logic
func (s *CompileStage) Execute(ctx context.Context, state *ExecutionState) error {
	c := compiler.New(s.w.compilerOpts)
	docs, err := CompileBundle(c, s.w.bundle)
	if err != nil {
		return err
	}
	for _, warning := range c.Warnings() {
		s.w.console.PrintWarning(warning)
	}

	hash, err := payloadHash(docs)
	if err != nil {
		return err
	}
	if state.PayloadHash != "" && state.PayloadHash != hash {
		s.w.console.PrintWarning(fmt.Sprintf("Compiled payload changed since run %s, starting a new run", state.RunID))
		slog.Info("Payload hash changed, resetting state", "previousRunId", state.RunID, "previousHash", state.PayloadHash, "hash", hash)
		state.reset()
	}
	state.PayloadHash = hash
	s.w.docs = docs

	s.w.console.PrintSuccess(fmt.Sprintf("✅ Compiled %d document(s)", len(docs)))
	slog.Info("Compile stage completed successfully", "documents", len(docs), "hash", hash, "dryRun", s.w.opts.DryRun)
	return nil
}
