package tactile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"modelsynth/internal/logging"
)

// ProgramsDir is where run directories live inside the container.
const ProgramsDir = "/home/klee/programs"

// engine is the part of the Docker API the runner needs.
type engine interface {
	EnsureImage(ctx context.Context, ref string) error
	// EnsureContainer returns the ID of a running container named name,
	// creating and starting it when needed.
	EnsureContainer(ctx context.Context, name, ref string) (string, error)
	Exec(ctx context.Context, id, dir string, cmd []string) (string, int, error)
	CopyFile(ctx context.Context, id, dir, name string, content []byte) error
}

// DockerConfig configures the container runner.
type DockerConfig struct {
	Image         string
	ContainerName string
}

// dockerRunner execs the toolchain inside one long-lived container. The
// container is idle (tail -f /dev/null) between runs.
type dockerRunner struct {
	engine engine
	config DockerConfig

	mu          sync.Mutex
	containerID string
}

// NewDockerExecutor connects to the Docker daemon from the environment.
func NewDockerExecutor(cfg DockerConfig, opts ...Option) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return newExecutor(&dockerRunner{engine: &dockerEngine{cli: cli}, config: cfg}, opts...), nil
}

func (r *dockerRunner) name() string { return "docker" }

// container starts the container on first use and caches its ID.
func (r *dockerRunner) container(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.containerID != "" {
		return r.containerID, nil
	}
	if err := r.engine.EnsureImage(ctx, r.config.Image); err != nil {
		return "", fmt.Errorf("image %s: %w", r.config.Image, err)
	}
	id, err := r.engine.EnsureContainer(ctx, r.config.ContainerName, r.config.Image)
	if err != nil {
		return "", fmt.Errorf("container %s: %w", r.config.ContainerName, err)
	}
	logging.Execution("using container %s (%s)", r.config.ContainerName, shortID(id))
	r.containerID = id
	return id, nil
}

func (r *dockerRunner) prepare(ctx context.Context, program string) (string, func(), error) {
	id, err := r.container(ctx)
	if err != nil {
		return "", nil, err
	}
	dir := path.Join(ProgramsDir, uuid.NewString())
	if out, code, err := r.engine.Exec(ctx, id, "", []string{"mkdir", "-p", dir}); err != nil || code != 0 {
		if err == nil {
			err = fmt.Errorf("mkdir exited %d: %s", code, strings.TrimSpace(out))
		}
		return "", nil, fmt.Errorf("create %s: %w", dir, err)
	}
	cleanup := func() {
		// The run context may already be done.
		if _, _, err := r.engine.Exec(context.Background(), id, "", []string{"rm", "-rf", dir}); err != nil {
			logging.ExecutionWarn("remove %s: %v", dir, err)
		}
	}
	if err := r.engine.CopyFile(ctx, id, dir, SourceFile, []byte(program)); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("copy %s: %w", SourceFile, err)
	}
	return dir, cleanup, nil
}

func (r *dockerRunner) run(ctx context.Context, dir string, args []string) (string, int, error) {
	id, err := r.container(ctx)
	if err != nil {
		return "", -1, err
	}
	return r.engine.Exec(ctx, id, dir, args)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// dockerEngine implements engine with the Docker SDK.
type dockerEngine struct {
	cli *client.Client
}

func (d *dockerEngine) EnsureImage(ctx context.Context, ref string) error {
	if _, _, err := d.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return err
	}
	logging.Execution("pulling %s", ref)
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()
	// The pull completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (d *dockerEngine) EnsureContainer(ctx context.Context, name, ref string) (string, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	switch {
	case err == nil:
		if info.State != nil && info.State.Running {
			return info.ID, nil
		}
		return info.ID, d.cli.ContainerStart(ctx, info.ID, container.StartOptions{})
	case !errdefs.IsNotFound(err):
		return "", err
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image: ref,
			Cmd:   []string{"/bin/sh", "-c", "tail -f /dev/null"},
		},
		&container.HostConfig{
			// KLEE recurses deeply on large states.
			Resources: container.Resources{
				Ulimits: []*units.Ulimit{{Name: "stack", Soft: -1, Hard: -1}},
			},
		},
		nil, nil, name)
	if err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		logging.ExecutionWarn("create %s: %s", name, w)
	}
	return resp.ID, d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{})
}

func (d *dockerEngine) Exec(ctx context.Context, id, dir string, cmd []string) (string, int, error) {
	created, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   dir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", -1, err
	}
	hijacked, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", -1, err
	}
	defer hijacked.Close()

	var buf bytes.Buffer
	out := &limitedWriter{w: &buf, max: maxOutput}
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(out, out, hijacked.Reader)
		done <- err
	}()
	select {
	case err = <-done:
	case <-ctx.Done():
		hijacked.Close()
		<-done
		return buf.String(), -1, ctx.Err()
	}
	if err != nil {
		return buf.String(), -1, err
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return buf.String(), -1, err
	}
	return buf.String(), inspect.ExitCode, nil
}

func (d *dockerEngine) CopyFile(ctx context.Context, id, dir, name string, content []byte) error {
	tarball, err := archive.Generate(name, string(content))
	if err != nil {
		return err
	}
	return d.cli.CopyToContainer(ctx, id, dir, tarball, container.CopyToContainerOptions{CopyUIDGID: true})
}
