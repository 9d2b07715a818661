package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"

	"calmdsl/pkg/runtime"
)

func TestGetDockerSocketPaths(t *testing.T) {
	t.Setenv("DOCKER_HOST", "tcp://docker.example.com:2376")

	paths := getDockerSocketPaths()
	if len(paths) < 2 {
		t.Fatalf("expected DOCKER_HOST and at least one socket, got %v", paths)
	}
	if paths[0] != "tcp://docker.example.com:2376" {
		t.Errorf("DOCKER_HOST should be tried first, got %q", paths[0])
	}
	if last := paths[len(paths)-1]; last != "unix:///var/run/docker.sock" {
		t.Errorf("default socket should be tried last, got %q", last)
	}
	for i, p := range paths {
		if p == "" {
			t.Errorf("socket path at index %d is empty", i)
		}
	}
}

func TestNewDockerRuntime_UnreachableDaemon(t *testing.T) {
	t.Setenv("DOCKER_HOST", "unix:///nonexistent/docker.sock")
	t.Setenv("HOME", t.TempDir())

	rt, err := NewDockerRuntime(context.Background())
	if err != nil {
		if !strings.HasPrefix(err.Error(), "failed to") {
			t.Errorf("unexpected error format: %s", err)
		}
		return
	}
	// A daemon is listening on the default socket.
	if rt == nil {
		t.Error("expected a runtime when no error is returned")
	}
}

func TestExitError(t *testing.T) {
	var err error = &runtime.ExitError{Code: 1}
	var exitErr *runtime.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("errors.As failed for %v", err)
	}
	if err.Error() != "container exited with status 1" {
		t.Errorf("Error() = %q", err.Error())
	}
}
