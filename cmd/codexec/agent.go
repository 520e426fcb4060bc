package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/codexec/pkg/agent"
	"github.com/rhuss/codexec/pkg/config"
)

func newAgentCmd() *cobra.Command {
	ac := agent.DefaultConfig()
	var addr string

	cmd := &cobra.Command{
		Use:   "sandbox-agent",
		Short: "Run the sandbox agent used by the remote backend",
		Long: `Runs the agent that executes programs shipped by a codexec server
configured with the remote backend. Programs run with the local process
backend configured under sandbox.process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg.Observability.Logging, os.Stderr))

			r, err := buildProcessRunner(cfg.Sandbox)
			if err != nil {
				return err
			}
			ac.AllowedCommands = allowedCommands(cfg.Sandbox)

			srv := &http.Server{
				Addr:         addr,
				Handler:      agent.New(r, ac).Handler(),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: cfg.Sandbox.Remote.Timeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("sandbox agent starting", "addr", addr, "max_concurrent", ac.MaxConcurrent, "commands", ac.AllowedCommands)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("shutting down gracefully")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVar(&ac.MaxConcurrent, "max-concurrent", ac.MaxConcurrent, "maximum simultaneous runs")
	cmd.Flags().StringVar(&ac.Token, "token", os.Getenv("CODEXEC_AGENT_TOKEN"), "bearer token callers must present")
	return cmd
}

// allowedCommands returns the executables the configured toolchains start.
func allowedCommands(sb config.SandboxConfig) []string {
	var cmds []string
	add := func(argv []string) {
		if len(argv) == 0 {
			return
		}
		if name := filepath.Base(argv[0]); !slices.Contains(cmds, name) {
			cmds = append(cmds, name)
		}
	}
	for _, tc := range buildToolchains(sb) {
		add(tc.Run)
		add(tc.Compile)
	}
	slices.Sort(cmds)
	return cmds
}
