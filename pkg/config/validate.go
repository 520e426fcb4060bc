package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/rhuss/codexec/pkg/debug"
)

var knownLanguages = []string{"python", "javascript", "typescript"}

var knownNamespaces = []string{"user", "mount", "net", "uts", "ipc", "pid"}

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent must be >= 0, got %d", c.Server.MaxConcurrent))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be > 0, got %d", c.Server.MaxBodyBytes))
	}

	errs = append(errs, c.Sandbox.validate()...)

	if c.Validation.MaxCodeBytes <= 0 {
		errs = append(errs, fmt.Errorf("validation.max_code_bytes must be > 0, got %d", c.Validation.MaxCodeBytes))
	}
	if c.Validation.MaxTestCases <= 0 {
		errs = append(errs, fmt.Errorf("validation.max_test_cases must be > 0, got %d", c.Validation.MaxTestCases))
	}
	for lang, patterns := range c.Validation.ExtraPatterns {
		if !slices.Contains(knownLanguages, lang) {
			errs = append(errs, fmt.Errorf("validation.extra_patterns: unknown language %q", lang))
		}
		for i, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				errs = append(errs, fmt.Errorf("validation.extra_patterns.%s[%d]: %w", lang, i, err))
			}
		}
	}

	switch c.Storage.Type {
	case "memory", "none":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\" or \"none\", got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		hasSecret := c.Auth.JWT.Secret != "" || c.Auth.JWT.SecretFile != ""
		hasKey := c.Auth.JWT.PublicKeyFile != ""
		if hasSecret == hasKey {
			errs = append(errs, fmt.Errorf("auth.jwt requires exactly one of secret, secret_file or public_key_file"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.requests_per_minute must be >= 0"))
	}

	if _, err := debug.ParseLevel(c.Observability.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("observability.logging.level: %w", err))
	}
	switch c.Observability.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.logging.format must be \"text\" or \"json\", got %q", c.Observability.Logging.Format))
	}
	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with /, got %q", c.Observability.Metrics.Path))
	}
	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path must start with /, got %q", c.MCP.Path))
	}

	return errors.Join(errs...)
}

func (s *SandboxConfig) validate() []error {
	var errs []error

	if s.RunTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.run_timeout must be > 0, got %s", s.RunTimeout))
	}
	if s.CompileTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.compile_timeout must be > 0, got %s", s.CompileTimeout))
	}
	if s.MaxOutputBytes <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.max_output_bytes must be > 0, got %d", s.MaxOutputBytes))
	}
	for lang := range s.Languages {
		if !slices.Contains(knownLanguages, lang) {
			errs = append(errs, fmt.Errorf("sandbox.languages: unknown language %q", lang))
		}
	}

	switch s.Backend {
	case "process":
		for _, ns := range s.Process.Namespaces {
			if !slices.Contains(knownNamespaces, ns) {
				errs = append(errs, fmt.Errorf("sandbox.process.namespaces: unknown namespace %q", ns))
			}
		}
		if cg := s.Process.Cgroup; cg != nil && cg.Parent == "" {
			errs = append(errs, fmt.Errorf("sandbox.process.cgroup.parent is required when cgroup limits are set"))
		}
	case "docker":
		if s.Docker.MemoryBytes < 0 || s.Docker.PidsLimit < 0 || s.Docker.CPUs < 0 {
			errs = append(errs, fmt.Errorf("sandbox.docker limits must not be negative"))
		}
	case "remote":
		if s.Remote.Kubernetes.Enabled {
			if s.Remote.Kubernetes.Template == "" {
				errs = append(errs, fmt.Errorf("sandbox.remote.kubernetes.template is required when kubernetes is enabled"))
			}
		} else if s.Remote.URL == "" {
			errs = append(errs, fmt.Errorf("sandbox.remote.url is required when sandbox.backend is \"remote\""))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.backend must be \"process\", \"docker\" or \"remote\", got %q", s.Backend))
	}

	return errs
}
