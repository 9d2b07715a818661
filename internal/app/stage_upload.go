package app

import (
	"context"
	"fmt"
	"log/slog"

	"calmdsl/pkg/payload"
)

// UploadStage creates or replaces every compiled document on the server.
// Documents uploaded by an earlier attempt of the same run are skipped.
type UploadStage struct {
	w *workflow
}

// Name returns the name of the stage
func (s *UploadStage) Name() string {
	return StageUpload
}

// Execute performs the upload stage logic
func (s *UploadStage) Execute(ctx context.Context, state *ExecutionState) error {
	if s.w.opts.DryRun {
		for _, doc := range s.w.docs {
			s.w.console.Printf("🔍 DRY RUN: Would upload %s '%s'\n", doc.Kind, doc.Name)
		}
		return nil
	}

	client, err := s.w.factory.GetClient()
	if err != nil {
		return err
	}
	uploader := NewUploader(client, s.w.opts.Project, true)

	for _, doc := range s.w.docs {
		if id, done := state.Entities[doc.Key()]; done {
			slog.Info("Skipping document uploaded earlier in this run", "kind", doc.Kind, "name", doc.Name, "uuid", id)
			continue
		}
		entity, err := uploader.Upload(ctx, doc)
		if err != nil {
			return err
		}
		state.recordEntity(doc.Kind, doc.Name, entity.Metadata.UUID)
		if err := s.w.checkpoint(state); err != nil {
			return err
		}
		s.w.console.PrintSuccess(fmt.Sprintf("✅ Uploaded %s '%s' (%s)", doc.Kind, doc.Name, entity.Metadata.UUID))
	}

	for _, doc := range s.w.docs {
		if doc.Kind != payload.KindProject {
			continue
		}
		linked, err := uploader.LinkEnvironments(ctx, doc, state.Entities[doc.Key()])
		if err != nil {
			return err
		}
		if linked {
			s.w.console.PrintSuccess(fmt.Sprintf("✅ Attached environments to project '%s'", doc.Name))
		}
	}

	slog.Info("Upload stage completed successfully", "documents", len(s.w.docs))
	return nil
}
