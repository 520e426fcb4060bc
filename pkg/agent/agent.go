// Package agent implements the sandbox agent: a small HTTP server that runs
// inside an isolated pod and executes harness programs with the local
// process runner on behalf of a codexec server using the remote backend.
package agent

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/codexec/pkg/debug"
	"github.com/rhuss/codexec/pkg/harness"
	"github.com/rhuss/codexec/pkg/runner"
)

// Config configures the agent.
type Config struct {
	// MaxConcurrent caps simultaneous runs; excess requests get 429.
	MaxConcurrent int

	// Token, when set, must be presented as a bearer token.
	Token string

	// AllowedCommands restricts the executables a step may start.
	AllowedCommands []string

	MaxBodyBytes int64
}

// DefaultConfig returns the agent defaults: three concurrent runs and the
// stock toolchain commands.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   3,
		AllowedCommands: []string{"python3", "node", "npx"},
		MaxBodyBytes:    10 << 20,
	}
}

// Server is the agent's HTTP surface.
type Server struct {
	cfg         Config
	runner      runner.Runner
	currentLoad atomic.Int32
	startTime   time.Time

	versionsOnce sync.Once
	versions     map[string]string
}

// New creates an agent that executes programs with r.
func New(r runner.Runner, cfg Config) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &Server{cfg: cfg, runner: r, startTime: time.Now()}
}

// Handler returns the agent routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	current := s.currentLoad.Add(1)
	defer s.currentLoad.Add(-1)

	if int(current) > s.cfg.MaxConcurrent {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.cfg.MaxConcurrent))
		return
	}

	var prog harness.Program
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)).Decode(&prog); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := s.checkProgram(&prog); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("run request", "language", prog.Language, "files", len(prog.Files), "steps", len(prog.Steps))
	debug.Log("agent", "program received", "remote_addr", r.RemoteAddr, "workspace_prefix", prog.WorkspacePrefix)

	start := time.Now()
	out, err := s.runner.Run(r.Context(), &prog)
	if err != nil {
		slog.Error("run failed", "language", prog.Language, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "run failed: "+err.Error())
		return
	}

	slog.Info("run complete",
		"language", prog.Language,
		"state", out.State,
		"exit_code", out.ExitCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"stdout_len", len(out.Stdout),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) == 1
}

func (s *Server) checkProgram(prog *harness.Program) error {
	if len(prog.Steps) == 0 {
		return fmt.Errorf("program has no steps")
	}
	for _, step := range prog.Steps {
		if len(step.Argv) == 0 {
			return fmt.Errorf("step %q has no command", step.Name)
		}
		if len(s.cfg.AllowedCommands) > 0 && !slices.Contains(s.cfg.AllowedCommands, filepath.Base(step.Argv[0])) {
			return fmt.Errorf("command %q is not allowed", step.Argv[0])
		}
	}
	return nil
}

type healthResponse struct {
	Status      string            `json:"status"`
	Runtimes    map[string]string `json:"runtimes"`
	Capacity    int               `json:"capacity"`
	CurrentLoad int               `json:"current_load"`
	UptimeSecs  int64             `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:      "healthy",
		Runtimes:    s.runtimes(),
		Capacity:    s.cfg.MaxConcurrent,
		CurrentLoad: int(s.currentLoad.Load()),
		UptimeSecs:  int64(time.Since(s.startTime).Seconds()),
	})
}

// runtimes reports the version of each allowed command found in PATH.
// Versions are detected once.
func (s *Server) runtimes() map[string]string {
	s.versionsOnce.Do(func() {
		s.versions = make(map[string]string, len(s.cfg.AllowedCommands))
		for _, cmd := range s.cfg.AllowedCommands {
			s.versions[cmd] = detectRuntimeVersion(cmd)
		}
	})
	return s.versions
}

func detectRuntimeVersion(name string) string {
	if _, err := exec.LookPath(name); err != nil {
		return "missing"
	}
	output, err := exec.Command(name, "--version").Output()
	if err != nil {
		return "unknown"
	}
	version := strings.TrimSpace(string(output))
	if idx := strings.Index(version, "\n"); idx > 0 {
		version = version[:idx]
	}
	return version
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
