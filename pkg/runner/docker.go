package runner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/harness"
	"github.com/rhuss/codexec/pkg/observability"
)

// DockerAPI is the subset of the Docker Engine client used by the docker
// backend. *client.Client satisfies it.
type DockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

var _ DockerAPI = (*client.Client)(nil)

// DockerWorkdir is where the workspace lives inside the container.
const DockerWorkdir = "/sandbox"

// DockerConfig configures the container backend.
type DockerConfig struct {
	// Images maps each language to an image that provides its toolchain.
	Images map[api.Language]string

	User        string
	MemoryBytes int64
	PidsLimit   int64
	NanoCPUs    int64

	// WorkspaceSize is the size of the tmpfs mounted at DockerWorkdir.
	WorkspaceSize string

	// PullImages pulls missing images before the first run.
	PullImages bool

	MaxOutputBytes int
}

// DefaultDockerConfig returns hardened defaults: nobody, 256MiB, 64
// processes and one CPU.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Images: map[api.Language]string{
			api.LanguagePython:     "python:3.12-alpine",
			api.LanguageJavaScript: "node:22-alpine",
			api.LanguageTypeScript: "codexec/node-typescript:22",
		},
		User:          "nobody",
		MemoryBytes:   256 << 20,
		PidsLimit:     64,
		NanoCPUs:      1_000_000_000,
		WorkspaceSize: "64m",
	}
}

// Docker runs every program in a fresh, network-less container that is
// force-removed afterwards.
type Docker struct {
	cli DockerAPI
	cfg DockerConfig
}

var _ Runner = (*Docker)(nil)

// NewDockerClient connects to the daemon from the environment
// (DOCKER_HOST and friends) or the given host.
func NewDockerClient(host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return cli, nil
}

// NewDocker creates a docker runner.
func NewDocker(cli DockerAPI, cfg DockerConfig) *Docker {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.WorkspaceSize == "" {
		cfg.WorkspaceSize = "64m"
	}
	return &Docker{cli: cli, cfg: cfg}
}

// Run implements Runner.
func (d *Docker) Run(ctx context.Context, prog *harness.Program) (*Outcome, error) {
	img, ok := d.cfg.Images[prog.Language]
	if !ok {
		return nil, fmt.Errorf("no image configured for %s", prog.Language)
	}
	if d.cfg.PullImages {
		if err := d.ensureImage(ctx, img); err != nil {
			return nil, err
		}
	}

	name := prog.WorkspacePrefix + randomSuffix()
	log := slog.With("container", name, "language", prog.Language)

	resp, err := d.cli.ContainerCreate(ctx, d.containerConfig(img), d.hostConfig(), nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer d.remove(resp.ID, log)

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	// The root filesystem is read-only; files go into the tmpfs through
	// exec since CopyToContainer cannot write to tmpfs mounts.
	for _, f := range prog.Files {
		if err := d.writeFile(ctx, resp.ID, f); err != nil {
			return nil, err
		}
	}
	log.Debug("runner state", "state", StateCreated)

	out, err := sequence(ctx, prog, func(ctx context.Context, step harness.Step) (stepResult, error) {
		return d.runStep(ctx, resp.ID, step, log)
	})
	if out != nil {
		log.Debug("runner state", "state", out.State, "step", out.Step, "exit_code", out.ExitCode)
	}
	return out, err
}

func (d *Docker) containerConfig(img string) *container.Config {
	return &container.Config{
		Image:           img,
		Cmd:             []string{"sleep", "infinity"},
		WorkingDir:      DockerWorkdir,
		User:            d.cfg.User,
		NetworkDisabled: true,
		Env:             []string{"HOME=" + DockerWorkdir, "TMPDIR=/tmp", "LANG=C.UTF-8"},
		Labels:          map[string]string{"app.kubernetes.io/managed-by": "codexec"},
	}
}

func (d *Docker) hostConfig() *container.HostConfig {
	hc := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		Tmpfs: map[string]string{
			DockerWorkdir: "rw,exec,nosuid,size=" + d.cfg.WorkspaceSize + ",mode=1777",
			"/tmp":        "rw,noexec,nosuid,size=16m,mode=1777",
		},
		Resources: container.Resources{
			Memory:     d.cfg.MemoryBytes,
			MemorySwap: d.cfg.MemoryBytes,
			NanoCPUs:   d.cfg.NanoCPUs,
		},
	}
	if d.cfg.PidsLimit > 0 {
		pids := d.cfg.PidsLimit
		hc.Resources.PidsLimit = &pids
	}
	return hc
}

func (d *Docker) ensureImage(ctx context.Context, img string) error {
	if _, err := d.cli.ImageInspect(ctx, img); err == nil {
		return nil
	}
	slog.Info("pulling docker image", "image", img)
	reader, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	// The pull only completes once the progress stream is consumed.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	return nil
}

func (d *Docker) writeFile(ctx context.Context, id string, f harness.File) error {
	target := path.Join(DockerWorkdir, path.Base(f.Name))
	ex, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:         []string{"sh", "-c", `cat > "$0"`, target},
		AttachStdin: true,
	})
	if err != nil {
		return fmt.Errorf("create write exec: %w", err)
	}
	att, err := d.cli.ContainerExecAttach(ctx, ex.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("attach write exec: %w", err)
	}
	_, werr := io.WriteString(att.Conn, f.Content)
	att.CloseWrite()
	att.Close()
	if werr != nil {
		return fmt.Errorf("write %s: %w", f.Name, werr)
	}

	inspect, err := d.waitExec(ctx, ex.ID)
	if err != nil {
		return err
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("write %s: exit code %d", f.Name, inspect.ExitCode)
	}
	return nil
}

func (d *Docker) runStep(ctx context.Context, id string, step harness.Step, log *slog.Logger) (stepResult, error) {
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if step.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
	}
	defer cancel()

	log.Debug("runner state", "state", StateSpawning, "step", step.Name)
	ex, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          step.Argv,
		WorkingDir:   DockerWorkdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return stepResult{}, fmt.Errorf("create exec: %w", err)
	}
	att, err := d.cli.ContainerExecAttach(ctx, ex.ID, container.ExecAttachOptions{})
	if err != nil {
		return stepResult{}, fmt.Errorf("attach exec: %w", err)
	}
	defer att.Close()
	log.Debug("runner state", "state", StateRunning, "step", step.Name, "exec", ex.ID)

	stdout := newCappedBuffer(d.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(d.cfg.MaxOutputBytes)
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, att.Reader)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			return stepResult{}, fmt.Errorf("read exec output: %w", err)
		}
	case <-stepCtx.Done():
		// The exec process cannot be signalled through the API; the
		// container is force-removed once the sequence ends.
		if ctx.Err() != nil {
			return stepResult{}, ctx.Err()
		}
		return stepResult{timedOut: true}, nil
	}

	inspect, err := d.waitExec(ctx, ex.ID)
	if err != nil {
		return stepResult{}, err
	}

	res := stepResult{exitCode: inspect.ExitCode, stdout: stdout.String(), stderr: stderr.String()}
	if notFound(res) {
		res.spawnErr = errors.New(strings.TrimSpace(res.stdout + res.stderr))
	}
	return res, nil
}

// waitExec polls until the exec process has exited.
func (d *Docker) waitExec(ctx context.Context, execID string) (container.ExecInspect, error) {
	for {
		inspect, err := d.cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			return container.ExecInspect{}, fmt.Errorf("inspect exec: %w", err)
		}
		if !inspect.Running {
			return inspect, nil
		}
		select {
		case <-ctx.Done():
			return container.ExecInspect{}, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (d *Docker) remove(id string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		observability.WorkspaceCleanupFailuresTotal.Inc()
		log.Warn("container cleanup failed", "error", err.Error())
		return
	}
	log.Debug("runner state", "state", StateCleaned)
}

// notFound recognizes the runtime's report for a missing executable,
// which docker exec surfaces as exit code 126 or 127.
func notFound(res stepResult) bool {
	if res.exitCode != 126 && res.exitCode != 127 {
		return false
	}
	text := res.stdout + res.stderr
	return strings.Contains(text, "executable file not found") || strings.Contains(text, "no such file or directory")
}

func randomSuffix() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}
