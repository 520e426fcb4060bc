// Package config provides unified configuration for the codexec service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CODEXEC_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"runtime"
	"time"
)

// Config holds all configuration for the codexec service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Validation    ValidationConfig    `yaml:"validation"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	MCP           MCPConfig           `yaml:"mcp"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`   // default: 1 MiB
	MaxConcurrent   int           `yaml:"max_concurrent"`   // default: 32, 0 = unbounded
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
}

// SandboxConfig selects and configures the runner backend.
type SandboxConfig struct {
	Backend        string        `yaml:"backend"`          // "process", "docker" or "remote", default: "process"
	RunTimeout     time.Duration `yaml:"run_timeout"`      // default: 10s
	CompileTimeout time.Duration `yaml:"compile_timeout"`  // default: 5s
	MaxOutputBytes int           `yaml:"max_output_bytes"` // default: 1 MiB

	// Languages overrides commands and images per language.
	Languages map[string]LanguageConfig `yaml:"languages"`

	Process ProcessConfig `yaml:"process"`
	Docker  DockerConfig  `yaml:"docker"`
	Remote  RemoteConfig  `yaml:"remote"`
}

// LanguageConfig overrides the toolchain of one language.
type LanguageConfig struct {
	Run     []string `yaml:"run"`
	Compile []string `yaml:"compile"`
	Image   string   `yaml:"image"` // docker backend only
}

// ProcessConfig configures the local process backend.
type ProcessConfig struct {
	TempDir string `yaml:"temp_dir"`
	Path    string `yaml:"path"`

	// SandboxInit runs every step through `codexec sandbox-init`, which
	// applies Limits before exec'ing the interpreter. On by default on
	// Linux, where it needs no privileges.
	SandboxInit bool         `yaml:"sandbox_init"`
	Limits      LimitsConfig `yaml:"limits"`

	// User runs children as a restricted uid/gid, e.g. 65534.
	User *UserConfig `yaml:"user"`

	// Namespaces to unshare: user, mount, net, uts, ipc, pid.
	Namespaces []string `yaml:"namespaces"`

	Cgroup *CgroupConfig `yaml:"cgroup"`
}

// LimitsConfig holds the rlimits and seccomp switch applied by sandbox-init.
type LimitsConfig struct {
	AddressSpace uint64 `yaml:"address_space"`
	CPUSeconds   uint64 `yaml:"cpu_seconds"`
	FileSize     uint64 `yaml:"file_size"`
	OpenFiles    uint64 `yaml:"open_files"`
	Processes    uint64 `yaml:"processes"`
	Seccomp      bool   `yaml:"seccomp"`
}

// UserConfig is a numeric credential.
type UserConfig struct {
	UID uint32 `yaml:"uid"`
	GID uint32 `yaml:"gid"`
}

// CgroupConfig configures per-step cgroup v2 limits.
type CgroupConfig struct {
	Parent    string `yaml:"parent"`
	MemoryMax int64  `yaml:"memory_max"`
	PidsMax   int64  `yaml:"pids_max"`
	CPUMax    string `yaml:"cpu_max"`
}

// DockerConfig configures the container backend.
type DockerConfig struct {
	Host          string  `yaml:"host"` // empty uses DOCKER_HOST
	User          string  `yaml:"user"`
	MemoryBytes   int64   `yaml:"memory_bytes"`
	PidsLimit     int64   `yaml:"pids_limit"`
	CPUs          float64 `yaml:"cpus"`
	WorkspaceSize string  `yaml:"workspace_size"`
	PullImages    bool    `yaml:"pull_images"`
}

// RemoteConfig configures the remote sandbox agent backend.
type RemoteConfig struct {
	// URL of a static agent. Ignored when Kubernetes is enabled.
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	TokenFile string        `yaml:"token_file"` // _file variant for token
	Timeout   time.Duration `yaml:"timeout"`    // default: 120s

	Kubernetes KubernetesConfig `yaml:"kubernetes"`
}

// KubernetesConfig configures sandbox acquisition through SandboxClaims.
type KubernetesConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Template     string        `yaml:"template"`
	Namespace    string        `yaml:"namespace"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	Port         int           `yaml:"port"`
}

// ValidationConfig holds submission limits and extra denylist patterns.
type ValidationConfig struct {
	MaxCodeBytes int `yaml:"max_code_bytes"` // default: 64 KiB
	MaxTestCases int `yaml:"max_test_cases"` // default: 100

	// ExtraPatterns adds denylist regular expressions per language.
	ExtraPatterns map[string][]string `yaml:"extra_patterns"`
}

// StorageConfig holds audit trail settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "none", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// AuthConfig holds service access control settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	Secret        string `yaml:"secret"`
	SecretFile    string `yaml:"secret_file"` // _file variant for secret
	PublicKeyFile string `yaml:"public_key_file"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// RateLimitConfig configures the per-caller token bucket. Zero requests
// per minute disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int                   `yaml:"requests_per_minute"`
	Burst             int                   `yaml:"burst"`
	Tiers             map[string]TierConfig `yaml:"tiers"`
}

// TierConfig overrides the rate limit of one service tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error; default: info
	Format string `yaml:"format"` // "text" or "json", default: "text"

	// Debug lists debug categories, e.g. "harness,runner". CODEXEC_DEBUG
	// overrides it.
	Debug string `yaml:"debug"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// MCPConfig holds the Model Context Protocol endpoint settings.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Path    string `yaml:"path"`    // default: "/mcp"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodyBytes:    1 << 20,
			MaxConcurrent:   32,
			ShutdownTimeout: 10 * time.Second,
		},
		Sandbox: SandboxConfig{
			Backend:        "process",
			RunTimeout:     10 * time.Second,
			CompileTimeout: 5 * time.Second,
			MaxOutputBytes: 1 << 20,
			Process: ProcessConfig{
				SandboxInit: runtime.GOOS == "linux",
				Limits: LimitsConfig{
					CPUSeconds: 15,
					FileSize:   16 << 20,
					OpenFiles:  256,
					Seccomp:    true,
				},
			},
			Docker: DockerConfig{
				User:          "nobody",
				MemoryBytes:   256 << 20,
				PidsLimit:     64,
				CPUs:          1,
				WorkspaceSize: "64m",
			},
			Remote: RemoteConfig{
				Timeout: 120 * time.Second,
				Kubernetes: KubernetesConfig{
					Namespace:    "default",
					ReadyTimeout: 60 * time.Second,
					Port:         8080,
				},
			},
		},
		Validation: ValidationConfig{
			MaxCodeBytes: 64 * 1024,
			MaxTestCases: 100,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns:       10,
				MigrateOnStart: true,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
	}
}
