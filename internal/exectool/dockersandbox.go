package exectool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/docker/docker/api/types/container"
	dockermount "github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
)

// DockerSandbox runs a one-shot command inside a short-lived container via
// the Docker Engine API, for environments where process-level sandboxing
// (seatbelt/landlock) isn't available. Selected explicitly by
// SandboxPolicy configuration, never the default.
type DockerSandbox struct {
	cli   *client.Client
	image string
}

// NewDockerSandbox connects to the Docker daemon using the standard
// environment-derived configuration (DOCKER_HOST, DOCKER_CERT_PATH, etc.)
// and negotiates the API version with the daemon.
func NewDockerSandbox(image string) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("exectool: connect to docker: %w", err)
	}
	if image == "" {
		image = "alpine:3.20"
	}
	return &DockerSandbox{cli: cli, image: image}, nil
}

// Run ignores cmd's own process-launching fields (Path/Args/Dir are read
// but the command never actually forks on the host) and instead creates,
// starts, waits on, and removes a container that runs the same argv.
func (s *DockerSandbox) Run(ctx context.Context, cmd *exec.Cmd) (bool, error) {
	argv := append([]string{cmd.Path}, cmd.Args[1:]...)

	mounts := []dockermount.Mount{}
	if cmd.Dir != "" {
		mounts = append(mounts, dockermount.Mount{
			Type:   dockermount.TypeBind,
			Source: cmd.Dir,
			Target: "/workspace",
		})
	}

	resp, err := s.cli.ContainerCreate(ctx, &container.Config{
		Image:      s.image,
		Cmd:        argv,
		WorkingDir: "/workspace",
		Env:        cmd.Env,
		Tty:        false,
	}, &container.HostConfig{
		Mounts:      mounts,
		NetworkMode: "none",
		AutoRemove:  false,
	}, nil, nil, "")
	if err != nil {
		// A creation failure (image missing, daemon unreachable) is a
		// sandbox-level denial, not a command failure.
		return true, fmt.Errorf("exectool: create sandbox container: %w", err)
	}
	defer s.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return true, fmt.Errorf("exectool: start sandbox container: %w", err)
	}

	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return false, fmt.Errorf("exectool: wait sandbox container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return false, ctx.Err()
	}

	out, err := s.cli.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err == nil {
		defer out.Close()
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, out)
		if cmd.Stdout != nil {
			_, _ = cmd.Stdout.Write(stripDockerMultiplexHeaders(buf.Bytes()))
		}
	}

	if exitCode != 0 {
		return false, &ExitError{Code: int(exitCode)}
	}
	return false, nil
}

// stripDockerMultiplexHeaders removes the 8-byte stream-multiplexing header
// Docker prepends to every frame of a non-TTY container's combined log
// stream, leaving plain text.
func stripDockerMultiplexHeaders(raw []byte) []byte {
	var out bytes.Buffer
	for len(raw) >= 8 {
		size := int(raw[4])<<24 | int(raw[5])<<16 | int(raw[6])<<8 | int(raw[7])
		raw = raw[8:]
		if size > len(raw) {
			size = len(raw)
		}
		out.Write(raw[:size])
		raw = raw[size:]
	}
	return out.Bytes()
}

// Close releases the underlying Docker client connection.
func (s *DockerSandbox) Close() error { return s.cli.Close() }

var _ Sandbox = (*DockerSandbox)(nil)
