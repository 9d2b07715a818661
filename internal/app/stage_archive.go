package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"calmdsl/internal/api"
)

// ArchiveStage commits the compiled documents, with secrets blanked, to the
// local archive repository.
type ArchiveStage struct {
	w *workflow
}

// Name returns the name of the stage
func (s *ArchiveStage) Name() string {
	return StageArchive
}

// Execute performs the archive stage logic
func (s *ArchiveStage) Execute(ctx context.Context, state *ExecutionState) error {
	dir := s.w.archiveDir()
	if s.w.opts.DryRun {
		for _, doc := range s.w.docs {
			s.w.console.Printf("🔍 DRY RUN: Would archive %s\n", filepath.Join(s.w.factory.SCM.ArchiveDir, dir, doc.Compiled().FileName()))
		}
		return nil
	}

	archive, err := s.w.factory.GetArchive()
	if err != nil {
		return err
	}
	for _, doc := range s.w.docs {
		tree, secrets, err := api.Redact(doc.Payload)
		if err != nil {
			return fmt.Errorf("failed to redact %s %q: %w", doc.Kind, doc.Name, err)
		}
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode %s %q: %w", doc.Kind, doc.Name, err)
		}
		if err := archive.Write(filepath.Join(dir, doc.Compiled().FileName()), append(data, '\n')); err != nil {
			return err
		}
		slog.Debug("Archived document", "kind", doc.Kind, "name", doc.Name, "redactedSecrets", secrets)
	}

	message := fmt.Sprintf("Apply %s\n\nRun: %s\nPayload: %s\n", dir, state.RunID, state.PayloadHash)
	commit, created, err := archive.Commit(message)
	if err != nil {
		return err
	}
	state.ArchiveCommit = commit

	if created {
		s.w.console.PrintSuccess(fmt.Sprintf("✅ Archived compiled payload in %s (commit %s)", archive.Dir(), shortHash(commit)))
	} else {
		s.w.console.PrintInfo("Archive already up to date")
	}
	slog.Info("Archive stage completed successfully", "directory", archive.Dir(), "commit", commit, "created", created)
	return nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
