package app

import (
	"context"
	"fmt"
	"log/slog"

	"calmdsl/pkg/payload"
)

// LaunchStage launches the uploaded blueprint as an application when
// requested, and waits for the launch to finish.
type LaunchStage struct {
	w *workflow
}

// Name returns the name of the stage
func (s *LaunchStage) Name() string {
	return StageLaunch
}

// Execute performs the launch stage logic
func (s *LaunchStage) Execute(ctx context.Context, state *ExecutionState) error {
	opts := s.w.opts
	if !opts.Launch {
		s.w.console.PrintInfo("Launch skipped: --launch not set")
		return nil
	}

	bp := firstOfKind(s.w.docs, payload.KindBlueprint)
	if bp == nil {
		return fmt.Errorf("%s has no blueprint to launch", opts.Path)
	}
	if opts.DryRun {
		s.w.console.Printf("🔍 DRY RUN: Would launch blueprint '%s' as application '%s'\n", bp.Name, opts.AppName)
		return nil
	}

	id := state.Entities[bp.Key()]
	if id == "" {
		return fmt.Errorf("blueprint '%s' was not uploaded in this run", bp.Name)
	}
	client, err := s.w.factory.GetClient()
	if err != nil {
		return err
	}

	requestID, err := client.Blueprints.Launch(ctx, id, opts.AppName, opts.Profile)
	if err != nil {
		return err
	}
	s.w.console.PrintInfo(fmt.Sprintf("Launch requested (%s), waiting for it to finish", requestID))
	appUUID, err := client.Blueprints.PollLaunch(ctx, id, requestID)
	if err != nil {
		return err
	}
	state.AppUUID = appUUID

	s.w.console.PrintSuccess(fmt.Sprintf("✅ Application '%s' launched (%s)", opts.AppName, appUUID))
	slog.Info("Launch stage completed successfully", "blueprint", bp.Name, "app", opts.AppName, "appUuid", appUUID)
	return nil
}
