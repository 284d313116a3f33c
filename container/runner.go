// Package container launches exactly one child container per host
// invocation: create, attach, start, stream the combined output onto the
// host's own streams, wait, and report the exit code. It is the collaborator
// the argument boundary hands its invocation plan to.
package container

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	containertypes "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/moby/term"
)

// Runner launches a container described by an invocation plan, waits for it
// to terminate, and returns its exit code. A non-zero exit code is not an
// error; infrastructure failures are.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (int, error)
}

// DockerRunner is the Docker-backed Runner.
type DockerRunner struct {
	client *client.Client
}

// NewDockerRunner creates a runner connected to the local Docker daemon.
func NewDockerRunner() (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &LaunchError{Err: fmt.Errorf("failed to create Docker client: %w", err)}
	}

	// Verify connection
	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, &LaunchError{Err: fmt.Errorf("failed to connect to Docker: %w", err)}
	}

	return &DockerRunner{client: cli}, nil
}

// Close closes the Docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

// Run executes the plan and blocks until the container exits. Output is
// forwarded live to the host's stdout/stderr; SIGINT and SIGTERM received
// by the host are forwarded to the container so its own cleanup triggers.
func (r *DockerRunner) Run(ctx context.Context, opts RunOptions) (int, error) {
	if opts.Image == "" {
		return 0, &LaunchError{Err: fmt.Errorf("no container image configured")}
	}

	if err := r.ensureImage(ctx, opts.Image); err != nil {
		return 0, err
	}

	// Sorted env keys keep the container config reproducible for the same plan.
	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+opts.Env[k])
	}

	var mounts []mount.Mount
	for _, m := range opts.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	user := ""
	if opts.User == "auto" {
		user = fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
	} else if opts.User != "" {
		user = opts.User
	}

	var memoryLimit int64
	if opts.MemoryLimit != "" {
		limit, err := units.RAMInBytes(opts.MemoryLimit)
		if err != nil {
			return 0, &LaunchError{Image: opts.Image, Err: fmt.Errorf("invalid memory limit %q: %w", opts.MemoryLimit, err)}
		}
		memoryLimit = limit
	}

	isTTY := term.IsTerminal(os.Stdin.Fd())

	containerConfig := &containertypes.Config{
		Image:        opts.Image,
		Cmd:          strslice.StrSlice(opts.Command),
		Env:          env,
		WorkingDir:   opts.WorkDir,
		User:         user,
		Tty:          isTTY,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: isTTY,
		AttachStderr: isTTY,
	}

	hostConfig := &containertypes.HostConfig{
		Mounts:      mounts,
		NetworkMode: containertypes.NetworkMode(opts.Network),
		AutoRemove:  false, // cleaned up manually in defer
		Resources: containertypes.Resources{
			Memory: memoryLimit,
		},
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return 0, &LaunchError{Image: opts.Image, Err: fmt.Errorf("failed to create container: %w", err)}
	}
	containerID := resp.ID

	defer func() {
		_ = r.client.ContainerRemove(context.Background(), containerID, containertypes.RemoveOptions{
			Force: true,
		})
	}()

	// Forward termination signals to the child so its own handling runs.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	sigDone := make(chan struct{})
	defer close(sigDone)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				name := "SIGTERM"
				if sig == syscall.SIGINT {
					name = "SIGINT"
				}
				_ = r.client.ContainerKill(context.Background(), containerID, name)
			case <-sigDone:
				return
			}
		}
	}()

	// Attach to container (stdin always, stdout/stderr only for TTY)
	attachResp, err := r.client.ContainerAttach(ctx, containerID, containertypes.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: isTTY,
		Stderr: isTTY,
	})
	if err != nil {
		return 0, &LaunchError{Image: opts.Image, Err: fmt.Errorf("failed to attach to container: %w", err)}
	}
	defer attachResp.Close()

	outputDone := make(chan error, 1)
	if isTTY {
		go func() {
			buf := make([]byte, 32*1024)
			for {
				n, err := attachResp.Reader.Read(buf)
				if n > 0 {
					os.Stdout.Write(buf[:n])
					os.Stdout.Sync()
				}
				if err != nil {
					outputDone <- err
					return
				}
			}
		}()
	}

	if err := r.client.ContainerStart(ctx, containerID, containertypes.StartOptions{}); err != nil {
		return 0, &LaunchError{Image: opts.Image, Err: fmt.Errorf("failed to start container: %w", err)}
	}

	// For non-TTY mode the combined stream comes from the log driver and is
	// demuxed back onto the host's stdout/stderr.
	if !isTTY {
		go func() {
			logs, err := r.client.ContainerLogs(ctx, containerID, containertypes.LogsOptions{
				ShowStdout: true,
				ShowStderr: true,
				Follow:     true,
			})
			if err != nil {
				outputDone <- err
				return
			}
			defer logs.Close()
			_, err = stdcopy.StdCopy(os.Stdout, os.Stderr, logs)
			outputDone <- err
		}()
	}

	// Set up TTY after the output goroutine is reading
	if isTTY {
		r.resizeTty(ctx, containerID)

		oldState, err := term.SetRawTerminal(os.Stdin.Fd())
		if err != nil {
			return 0, &LaunchError{Image: opts.Image, Err: fmt.Errorf("failed to set raw terminal: %w", err)}
		}
		defer term.RestoreTerminal(os.Stdin.Fd(), oldState)

		go r.monitorTtySize(ctx, containerID)
	}

	// Copy stdin to the container. In raw TTY mode interrupt bytes travel
	// through this stream and the child's own terminal handling takes over.
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				break
			}
			if _, err := attachResp.Conn.Write(buf[:n]); err != nil {
				break
			}
		}
		attachResp.CloseWrite()
	}()

	statusCh, errCh := r.client.ContainerWait(ctx, containerID, containertypes.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		<-outputDone
		if err != nil && ctx.Err() == nil {
			return 0, &LaunchError{Image: opts.Image, Err: fmt.Errorf("error waiting for container: %w", err)}
		}
		return 0, ctx.Err()
	case status := <-statusCh:
		<-outputDone
		return int(status.StatusCode), nil
	case <-ctx.Done():
		// Bounded-grace stop backs the cancellation path; the signal
		// forwarding above already gave the child its chance to clean up.
		timeout := 10
		_ = r.client.ContainerStop(context.Background(), containerID, containertypes.StopOptions{Timeout: &timeout})
		return 0, ctx.Err()
	}
}

// ensureImage checks the image is present locally and pulls it when not,
// streaming pull progress to stderr.
func (r *DockerRunner) ensureImage(ctx context.Context, image string) error {
	_, _, err := r.client.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return &LaunchError{Image: image, Err: err}
	}

	fmt.Fprintf(os.Stderr, "Image %q not found locally, pulling...\n", image)
	rc, err := r.client.ImagePull(ctx, image, imagetypes.PullOptions{})
	if err != nil {
		return &LaunchError{Image: image, Err: fmt.Errorf("failed to pull image: %w", err)}
	}
	defer rc.Close()

	fd, isTerm := term.GetFdInfo(os.Stderr)
	if err := jsonmessage.DisplayJSONMessagesStream(rc, os.Stderr, fd, isTerm, nil); err != nil {
		return &LaunchError{Image: image, Err: fmt.Errorf("failed to pull image: %w", err)}
	}
	return nil
}

// resizeTty resizes the container TTY to match the current terminal size.
func (r *DockerRunner) resizeTty(ctx context.Context, containerID string) {
	winsize, err := term.GetWinsize(os.Stdout.Fd())
	if err != nil {
		return
	}
	r.client.ContainerResize(ctx, containerID, containertypes.ResizeOptions{
		Height: uint(winsize.Height),
		Width:  uint(winsize.Width),
	})
}

// monitorTtySize resizes the container TTY whenever the host terminal does.
func (r *DockerRunner) monitorTtySize(ctx context.Context, containerID string) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			r.resizeTty(ctx, containerID)
		case <-ctx.Done():
			return
		}
	}
}
