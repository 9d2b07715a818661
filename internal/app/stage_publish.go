package app

import (
	"context"
	"fmt"
	"log/slog"
)

// PublishStage pushes the archive repository to GitLab when a token is
// configured.
type PublishStage struct {
	w *workflow
}

// Name returns the name of the stage
func (s *PublishStage) Name() string {
	return StagePublish
}

// Execute performs the publish stage logic
func (s *PublishStage) Execute(ctx context.Context, state *ExecutionState) error {
	publisher, err := s.w.factory.GetPublisher()
	if err != nil {
		return err
	}
	if publisher == nil {
		s.w.console.PrintInfo("Publishing skipped: no GitLab token configured")
		return nil
	}

	target := s.w.factory.PublishTarget()
	if s.w.opts.DryRun {
		s.w.console.Printf("🔍 DRY RUN: Would push the archive to GitLab project '%s' at %s\n", target.Path(), s.w.factory.SCM.GitLabURL)
		return nil
	}

	archive, err := s.w.factory.GetArchive()
	if err != nil {
		return err
	}
	url, err := publisher.Publish(ctx, archive, target)
	if err != nil {
		return err
	}
	state.PublishedURL = url

	s.w.console.PrintSuccess(fmt.Sprintf("✅ Archive published: %s", url))
	slog.Info("Publish stage completed successfully", "project", target.Path(), "url", url)
	return nil
}
