package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/auth"
	"github.com/rhuss/codexec/pkg/auth/apikey"
	"github.com/rhuss/codexec/pkg/auth/jwt"
	"github.com/rhuss/codexec/pkg/auth/noop"
	"github.com/rhuss/codexec/pkg/config"
	"github.com/rhuss/codexec/pkg/debug"
	"github.com/rhuss/codexec/pkg/executor"
	"github.com/rhuss/codexec/pkg/harness"
	"github.com/rhuss/codexec/pkg/mcpserver"
	"github.com/rhuss/codexec/pkg/runner"
	"github.com/rhuss/codexec/pkg/runner/kubernetes"
	"github.com/rhuss/codexec/pkg/sandboxinit"
	"github.com/rhuss/codexec/pkg/storage"
	"github.com/rhuss/codexec/pkg/storage/memory"
	"github.com/rhuss/codexec/pkg/storage/postgres"
	"github.com/rhuss/codexec/pkg/transport"
	transporthttp "github.com/rhuss/codexec/pkg/transport/http"
	"github.com/rhuss/codexec/pkg/validator"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the code execution API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg.Observability.Logging, os.Stderr))

			srv, cleanup, err := buildServer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return srv.ListenAndServe()
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger and enables the configured debug
// categories. Invalid levels were rejected by config validation.
func newLogger(lc config.LoggingConfig, w io.Writer) *slog.Logger {
	debug.Init(lc.Debug)
	level, _ := debug.ParseLevel(lc.Level)
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildServer wires the configured runner, store and authentication into
// an HTTP server. The returned cleanup releases the runner and the store.
func buildServer(ctx context.Context, cfg *config.Config) (*transporthttp.Server, func(), error) {
	r, closeRunner, err := buildRunner(cfg.Sandbox)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s runner: %w", cfg.Sandbox.Backend, err)
	}

	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		closeRunner()
		return nil, nil, fmt.Errorf("creating store: %w", err)
	}
	cleanup := func() {
		closeRunner()
		if store != nil {
			if err := store.Close(); err != nil {
				slog.Warn("closing store", "error", err)
			}
		}
	}

	exec, err := buildExecutor(r, cfg, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	chain, limiter, err := buildAuth(cfg.Auth)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating authenticator: %w", err)
	}

	bypass := slices.Clone(auth.DefaultBypassEndpoints)
	if cfg.Observability.Metrics.Enabled && !slices.Contains(bypass, cfg.Observability.Metrics.Path) {
		bypass = append(bypass, cfg.Observability.Metrics.Path)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodyBytes),
		transporthttp.WithMaxConcurrent(cfg.Server.MaxConcurrent),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(slog.Default()),
		transporthttp.WithLanguages(exec.Languages()),
		transporthttp.WithMiddleware(auth.Middleware(chain, limiter, bypass)),
	}

	var audit transport.AuditReader
	if store != nil {
		audit = store
		opts = append(opts, transporthttp.WithReadiness(store.HealthCheck))
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithHandler(cfg.Observability.Metrics.Path, promhttp.Handler()))
	}
	if cfg.MCP.Enabled {
		mcp := mcpserver.New(exec, exec.Languages(), version)
		opts = append(opts, transporthttp.WithHandler(cfg.MCP.Path, mcp.Handler()))
	}

	slog.Info("codexec configured",
		"backend", cfg.Sandbox.Backend,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"mcp", cfg.MCP.Enabled,
	)
	return transporthttp.NewServer(exec, audit, opts...), cleanup, nil
}

func buildExecutor(r runner.Runner, cfg *config.Config, store storage.ExecutionStore) (*executor.Executor, error) {
	v, err := validator.New(extraPatterns(cfg.Validation))
	if err != nil {
		return nil, fmt.Errorf("creating validator: %w", err)
	}

	return executor.New(r, executor.Config{
		Limits: api.ValidationConfig{
			MaxCodeBytes: cfg.Validation.MaxCodeBytes,
			MaxTestCases: cfg.Validation.MaxTestCases,
		},
		Validator: v,
		Compiler:  harness.NewCompiler(buildToolchains(cfg.Sandbox)),
		Store:     store,
	})
}

func extraPatterns(vc config.ValidationConfig) map[api.Language][]string {
	extra := make(map[api.Language][]string, len(vc.ExtraPatterns))
	for lang, patterns := range vc.ExtraPatterns {
		extra[api.Language(lang)] = patterns
	}
	return extra
}

// buildToolchains applies the configured timeouts and command overrides
// to the default toolchains.
func buildToolchains(sb config.SandboxConfig) map[api.Language]harness.Toolchain {
	tcs := harness.DefaultToolchains()
	for lang, tc := range tcs {
		if sb.RunTimeout > 0 {
			tc.RunTimeout = sb.RunTimeout
		}
		if len(tc.Compile) > 0 && sb.CompileTimeout > 0 {
			tc.CompileTimeout = sb.CompileTimeout
		}
		if lc, ok := sb.Languages[string(lang)]; ok {
			if len(lc.Run) > 0 {
				tc.Run = lc.Run
			}
			if len(lc.Compile) > 0 {
				tc.Compile = lc.Compile
			}
		}
		tcs[lang] = tc
	}
	return tcs
}

func buildRunner(sb config.SandboxConfig) (runner.Runner, func(), error) {
	switch sb.Backend {
	case "docker":
		cli, err := runner.NewDockerClient(sb.Docker.Host)
		if err != nil {
			return nil, nil, err
		}
		dc := runner.DefaultDockerConfig()
		dc.User = sb.Docker.User
		dc.MemoryBytes = sb.Docker.MemoryBytes
		dc.PidsLimit = sb.Docker.PidsLimit
		dc.NanoCPUs = int64(sb.Docker.CPUs * 1e9)
		dc.WorkspaceSize = sb.Docker.WorkspaceSize
		dc.PullImages = sb.Docker.PullImages
		dc.MaxOutputBytes = sb.MaxOutputBytes
		for name, lc := range sb.Languages {
			if lc.Image != "" {
				dc.Images[api.Language(name)] = lc.Image
			}
		}
		slog.Info("docker backend", "host", cli.DaemonHost(), "user", dc.User, "memory_bytes", dc.MemoryBytes)
		return runner.NewDocker(cli, dc), func() { _ = cli.Close() }, nil

	case "remote":
		acq, err := buildAcquirer(sb.Remote)
		if err != nil {
			return nil, nil, err
		}
		return runner.NewRemote(acq, runner.RemoteConfig{
			Timeout: sb.Remote.Timeout,
			Token:   sb.Remote.Token,
		}), func() {}, nil

	default:
		p, err := buildProcessRunner(sb)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	}
}

func buildAcquirer(rc config.RemoteConfig) (runner.Acquirer, error) {
	if !rc.Kubernetes.Enabled {
		slog.Info("remote backend", "url", rc.URL)
		return runner.StaticAcquirer{URL: rc.URL}, nil
	}

	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	scheme, err := kubernetes.NewScheme()
	if err != nil {
		return nil, err
	}
	c, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	slog.Info("remote backend", "kubernetes_template", rc.Kubernetes.Template, "namespace", rc.Kubernetes.Namespace)
	return kubernetes.NewClaimAcquirer(c, kubernetes.Config{
		Template:     rc.Kubernetes.Template,
		Namespace:    rc.Kubernetes.Namespace,
		ReadyTimeout: rc.Kubernetes.ReadyTimeout,
		Port:         rc.Kubernetes.Port,
	}), nil
}

func buildProcessRunner(sb config.SandboxConfig) (*runner.Process, error) {
	pc, err := processRunnerConfig(sb)
	if err != nil {
		return nil, err
	}
	slog.Info("process backend",
		"sandbox_init", sb.Process.SandboxInit,
		"namespaces", strings.Join(sb.Process.Namespaces, ","),
		"cgroup", sb.Process.Cgroup != nil,
	)
	if unisolated(pc) {
		slog.Warn("process backend has no isolation configured; submitted code runs with the server's privileges",
			"hint", "set sandbox.process.sandbox_init or namespaces")
	}
	return runner.NewProcess(pc)
}

func processRunnerConfig(sb config.SandboxConfig) (runner.ProcessConfig, error) {
	pc := runner.ProcessConfig{
		TempDir:        sb.Process.TempDir,
		Path:           sb.Process.Path,
		MaxOutputBytes: sb.MaxOutputBytes,
	}

	if sb.Process.SandboxInit {
		self, err := os.Executable()
		if err != nil {
			return pc, fmt.Errorf("locating codexec binary: %w", err)
		}
		pc.Launcher = append([]string{self, sandboxInitCmdName}, sandboxLimits(sb.Process.Limits).Args()...)
	}

	pc.Isolation.Namespaces = sb.Process.Namespaces
	if u := sb.Process.User; u != nil {
		pc.Isolation.Credential = &runner.Credential{UID: u.UID, GID: u.GID}
	}
	if c := sb.Process.Cgroup; c != nil {
		pc.Isolation.Cgroup = &runner.CgroupLimits{
			Parent:    c.Parent,
			MemoryMax: c.MemoryMax,
			PidsMax:   c.PidsMax,
			CPUMax:    c.CPUMax,
		}
	}

	return pc, nil
}

// unisolated reports whether steps would run as plain children of the server.
func unisolated(pc runner.ProcessConfig) bool {
	iso := pc.Isolation
	return len(pc.Launcher) == 0 && len(iso.Namespaces) == 0 && iso.Credential == nil && iso.Cgroup == nil
}

func sandboxLimits(lc config.LimitsConfig) sandboxinit.Limits {
	return sandboxinit.Limits{
		AddressSpace: lc.AddressSpace,
		CPUSeconds:   lc.CPUSeconds,
		FileSize:     lc.FileSize,
		OpenFiles:    lc.OpenFiles,
		Processes:    lc.Processes,
		Seccomp:      lc.Seccomp,
	}
}

// buildStore returns nil when the audit trail is disabled.
func buildStore(ctx context.Context, sc config.StorageConfig) (storage.ExecutionStore, error) {
	switch sc.Type {
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            sc.Postgres.DSN,
			MaxConns:       sc.Postgres.MaxConns,
			MigrateOnStart: sc.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", sc.Postgres.MaxConns)
		return s, nil
	case "none":
		slog.Info("storage disabled")
		return nil, nil
	default:
		slog.Info("storage enabled", "type", "memory", "max_size", sc.MaxSize)
		return memory.New(sc.MaxSize), nil
	}
}

func buildAuth(ac config.AuthConfig) (*auth.Chain, auth.RateLimiter, error) {
	chain := &auth.Chain{Default: auth.No}

	switch ac.Type {
	case "apikey":
		chain.Authenticators = append(chain.Authenticators, apikey.New(apiKeyEntries(ac.APIKeys)))
	case "jwt":
		jc := jwt.Config{Issuer: ac.JWT.Issuer, Audience: ac.JWT.Audience}
		if ac.JWT.PublicKeyFile != "" {
			pem, err := os.ReadFile(ac.JWT.PublicKeyFile)
			if err != nil {
				return nil, nil, fmt.Errorf("reading jwt public key: %w", err)
			}
			jc.PublicKeyPEM = pem
		} else {
			jc.Secret = []byte(ac.JWT.Secret)
		}
		a, err := jwt.New(jc)
		if err != nil {
			return nil, nil, err
		}
		chain.Authenticators = append(chain.Authenticators, a)
		// Service callers without a token provider may still use keys.
		if len(ac.APIKeys) > 0 {
			chain.Authenticators = append(chain.Authenticators, apikey.New(apiKeyEntries(ac.APIKeys)))
		}
	default:
		chain.Authenticators = append(chain.Authenticators, &noop.Authenticator{})
	}

	var limiter auth.RateLimiter
	rl := ac.RateLimit
	if rl.RequestsPerMinute > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(rl.Tiers))
		for name, t := range rl.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
		}
		limiter = auth.NewTokenBucketLimiter(tiers, auth.TierConfig{
			RequestsPerMinute: rl.RequestsPerMinute,
			Burst:             rl.Burst,
		})
	}
	return chain, limiter, nil
}

func apiKeyEntries(keys []config.APIKeyConfig) []apikey.RawKeyEntry {
	entries := make([]apikey.RawKeyEntry, 0, len(keys))
	for _, k := range keys {
		id := auth.Identity{Subject: k.Subject, Tier: k.ServiceTier, Tenant: k.TenantID}
		entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
	}
	return entries
}
