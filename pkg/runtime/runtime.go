// Package runtime defines the container runtime used to run tools such as
// the script linter.
package runtime

import (
	"context"
	"fmt"
	"io"
)

// RunOptions defines the parameters for running a container.
type RunOptions struct {
	Image            string
	Command          []string
	VolumeMounts     map[string]string
	EnvVars          map[string]string
	WorkingDirectory string
	// ReadOnly mounts every volume read-only.
	ReadOnly bool
}

// ContainerRuntime defines the contract for container operations.
//
// RunContainer streams the container output. Closing the stream waits for
// the container to exit, removes it and returns an *ExitError when it exited
// with a non-zero status.
type ContainerRuntime interface {
	PullImage(ctx context.Context, image string) error
	RunContainer(ctx context.Context, opts RunOptions) (io.ReadCloser, error)
}

// ExitError reports a container that exited with a non-zero status.
type ExitError struct {
	Code int64
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("container exited with status %d", e.Code)
}
