package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"calmdsl/pkg/runtime"
)

// DockerRuntime implements the ContainerRuntime interface using Docker client.
type DockerRuntime struct {
	client *client.Client
}

var _ runtime.ContainerRuntime = (*DockerRuntime)(nil)

// getDockerSocketPaths returns the hosts to try, in order: DOCKER_HOST, then
// the sockets of common Docker installations.
func getDockerSocketPaths() []string {
	var hosts []string
	if h := os.Getenv("DOCKER_HOST"); h != "" {
		hosts = append(hosts, h)
	}
	if home, err := os.UserHomeDir(); err == nil {
		hosts = append(hosts,
			"unix://"+filepath.Join(home, ".docker", "run", "docker.sock"),
			"unix://"+filepath.Join(home, ".colima", "default", "docker.sock"),
		)
	}
	return append(hosts, "unix:///var/run/docker.sock")
}

// NewDockerRuntime connects to the first reachable Docker daemon.
func NewDockerRuntime(ctx context.Context) (*DockerRuntime, error) {
	var lastErr error
	for _, host := range getDockerSocketPaths() {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithHost(host), client.WithAPIVersionNegotiation())
		if err != nil {
			lastErr = fmt.Errorf("failed to create Docker client: %w", err)
			continue
		}
		if _, err := cli.Ping(ctx); err != nil {
			lastErr = fmt.Errorf("failed to connect to Docker daemon at %s: %w", host, err)
			_ = cli.Close()
			continue
		}
		slog.Debug("Connected to Docker daemon", "host", host)
		return &DockerRuntime{client: cli}, nil
	}
	return nil, lastErr
}

// PullImage pulls a Docker image.
func (d *DockerRuntime) PullImage(ctx context.Context, imageName string) error {
	slog.Info("Pulling Docker image", "image", imageName)

	reader, err := d.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to stream image pull output: %w", err)
	}
	return nil
}

// RunContainer starts a container and returns its combined output.
func (d *DockerRuntime) RunContainer(ctx context.Context, opts runtime.RunOptions) (io.ReadCloser, error) {
	slog.Info("Running container", "image", opts.Image, "command", opts.Command)

	hostPaths := make([]string, 0, len(opts.VolumeMounts))
	for hostPath := range opts.VolumeMounts {
		hostPaths = append(hostPaths, hostPath)
	}
	sort.Strings(hostPaths)
	mounts := make([]mount.Mount, 0, len(hostPaths))
	for _, hostPath := range hostPaths {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   hostPath,
			Target:   opts.VolumeMounts[hostPath],
			ReadOnly: opts.ReadOnly,
		})
	}

	env := make([]string, 0, len(opts.EnvVars))
	for key, value := range opts.EnvVars {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)

	resp, err := d.client.ContainerCreate(ctx,
		&container.Config{Image: opts.Image, Cmd: opts.Command, Env: env, WorkingDir: opts.WorkingDirectory},
		&container.HostConfig{Mounts: mounts},
		nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.remove(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	logs, err := d.client.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		d.remove(resp.ID)
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	// Docker multiplexes stdout and stderr into one framed stream.
	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(pw, pw, logs)
		logs.Close()
		pw.CloseWithError(copyErr)
	}()

	return &containerOutput{ctx: ctx, runtime: d, id: resp.ID, reader: pr}, nil
}

func (d *DockerRuntime) remove(id string) {
	if err := d.client.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true}); err != nil {
		slog.Error("Failed to remove container", "containerID", id, "error", err)
	}
}

// containerOutput streams container output and reaps the container on Close.
type containerOutput struct {
	ctx     context.Context
	runtime *DockerRuntime
	id      string
	reader  *io.PipeReader
	closed  bool
}

func (c *containerOutput) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *containerOutput) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer c.runtime.remove(c.id)
	defer c.reader.Close()

	statusCh, errCh := c.runtime.client.ContainerWait(c.ctx, c.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to wait for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return fmt.Errorf("container failed: %s", status.Error.Message)
		}
		if status.StatusCode != 0 {
			return &runtime.ExitError{Code: status.StatusCode}
		}
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}
