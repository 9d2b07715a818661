package scm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitlab "github.com/xanzy/go-gitlab"
)

const remoteName = "gitlab"

// GitLabPublisher publishes archives to GitLab projects.
type GitLabPublisher struct {
	client *gitlab.Client
	token  string
}

var _ Publisher = (*GitLabPublisher)(nil)

// NewGitLabPublisher creates a publisher for the GitLab instance at baseURL.
func NewGitLabPublisher(baseURL, token string) (*GitLabPublisher, error) {
	if token == "" {
		return nil, fmt.Errorf("a GitLab token is required: set scm.token or GITLAB_TOKEN")
	}
	if baseURL == "" {
		baseURL = "https://gitlab.com"
	}
	apiURL := strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(apiURL, "/api/v4") {
		apiURL += "/api/v4"
	}

	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return &GitLabPublisher{client: client, token: token}, nil
}

// EnsureProject returns the project at target, creating it when missing.
func (g *GitLabPublisher) EnsureProject(ctx context.Context, target Target) (*gitlab.Project, error) {
	project, resp, err := g.client.Projects.GetProject(target.Path(), nil, gitlab.WithContext(ctx))
	if err == nil {
		slog.Info("GitLab project exists", "path", target.Path(), "id", project.ID)
		return project, nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("failed to look up GitLab project %s: %w", target.Path(), err)
	}

	opts := &gitlab.CreateProjectOptions{
		Name:                 gitlab.String(target.Name),
		Path:                 gitlab.String(target.Name),
		Description:          gitlab.String(target.Description),
		Visibility:           gitlab.Visibility(visibility(target.Visibility)),
		InitializeWithReadme: gitlab.Bool(false),
	}
	if target.Namespace != "" {
		ns, _, err := g.client.Namespaces.GetNamespace(target.Namespace, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to look up GitLab namespace %s: %w", target.Namespace, err)
		}
		opts.NamespaceID = gitlab.Int(ns.ID)
	}

	project, _, err = g.client.Projects.CreateProject(opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab project: %w", err)
	}
	slog.Info("GitLab project created", "id", project.ID, "url", project.HTTPURLToRepo)
	return project, nil
}

func visibility(v string) gitlab.VisibilityValue {
	switch v {
	case "public":
		return gitlab.PublicVisibility
	case "internal":
		return gitlab.InternalVisibility
	default:
		return gitlab.PrivateVisibility
	}
}

// Publish implements Publisher.
func (g *GitLabPublisher) Publish(ctx context.Context, archive *Archive, target Target) (string, error) {
	project, err := g.EnsureProject(ctx, target)
	if err != nil {
		return "", err
	}
	if err := archive.setRemote(remoteName, project.HTTPURLToRepo); err != nil {
		return "", err
	}

	err = archive.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		// GitLab accepts any username with a token as password.
		Auth: &githttp.BasicAuth{Username: "oauth2", Password: g.token},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("failed to push archive to %s: %w", project.HTTPURLToRepo, err)
	}
	slog.Info("Published archive", "url", project.WebURL)
	return project.WebURL, nil
}

// setRemote points the named remote at url, replacing a stale URL.
func (a *Archive) setRemote(name, url string) error {
	remote, err := a.repo.Remote(name)
	switch {
	case err == nil:
		urls := remote.Config().URLs
		if len(urls) == 1 && urls[0] == url {
			return nil
		}
		if err := a.repo.DeleteRemote(name); err != nil {
			return fmt.Errorf("failed to replace remote %s: %w", name, err)
		}
	case !errors.Is(err, git.ErrRemoteNotFound):
		return fmt.Errorf("failed to read remote %s: %w", name, err)
	}

	if _, err := a.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		return fmt.Errorf("failed to add remote %s: %w", name, err)
	}
	return nil
}
