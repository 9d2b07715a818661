// Package scm keeps compiled payloads under version control: a local git
// archive, optionally published to GitLab.
package scm

import "context"

// Target names the remote project an archive is published to.
type Target struct {
	Namespace   string
	Name        string
	Description string
	Visibility  string
}

// Path returns namespace/name, or name without a namespace.
func (t Target) Path() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "/" + t.Name
}

// Publisher pushes an archive repository to a hosted project.
type Publisher interface {
	// Publish makes sure the remote project exists, pushes the archive to it
	// and returns the project's web URL.
	Publish(ctx context.Context, archive *Archive, target Target) (string, error)
}
