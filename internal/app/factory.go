package app

import (
	"fmt"
	"log/slog"
	"time"

	"calmdsl/internal/api"
	"calmdsl/internal/config"
	"calmdsl/internal/scm"
)

// ProviderFactory creates the API client, the archive and the publisher a run
// needs, from the CLI configuration. Each is created on first use.
type ProviderFactory struct {
	API          api.Config
	SCM          config.SCM
	PollInterval time.Duration
	PollTimeout  time.Duration

	client *api.Client
}

// NewProviderFactory creates a factory for cfg.
func NewProviderFactory(cfg *config.Config) *ProviderFactory {
	return &ProviderFactory{
		API: api.Config{
			Host:      cfg.Server.Host,
			Port:      cfg.Server.Port,
			Username:  cfg.Server.Username,
			Password:  cfg.Server.Password,
			VerifyTLS: cfg.Server.VerifyTLS,
			Timeout:   cfg.Server.Timeout,
			RetryMax:  cfg.Server.RetryMax,
			Logger:    slog.Default(),
		},
		SCM:          cfg.SCM,
		PollInterval: cfg.Server.PollInterval,
		PollTimeout:  cfg.Server.PollTimeout,
	}
}

// GetClient returns the API client.
func (f *ProviderFactory) GetClient() (*api.Client, error) {
	if f.client != nil {
		return f.client, nil
	}
	client, err := api.New(f.API)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	if f.PollInterval > 0 {
		client.PollInterval = f.PollInterval
	}
	if f.PollTimeout > 0 {
		client.PollTimeout = f.PollTimeout
	}
	f.client = client
	return client, nil
}

// GetArchive opens the archive repository.
func (f *ProviderFactory) GetArchive() (*scm.Archive, error) {
	if f.SCM.ArchiveDir == "" {
		return nil, fmt.Errorf("no archive directory configured")
	}
	return scm.OpenArchive(f.SCM.ArchiveDir)
}

// GetPublisher returns the GitLab publisher, or nil when no token is
// configured and publishing is disabled.
func (f *ProviderFactory) GetPublisher() (scm.Publisher, error) {
	if f.SCM.Token == "" {
		return nil, nil
	}
	publisher, err := scm.NewGitLabPublisher(f.SCM.GitLabURL, f.SCM.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab publisher: %w", err)
	}
	return publisher, nil
}

// PublishTarget returns the GitLab project the archive is pushed to.
func (f *ProviderFactory) PublishTarget() scm.Target {
	name := f.SCM.Project
	if name == "" {
		name = config.DefaultSCMProject
	}
	return scm.Target{
		Namespace:   f.SCM.Namespace,
		Name:        name,
		Description: "Compiled Calm payloads",
		Visibility:  f.SCM.Visibility,
	}
}
