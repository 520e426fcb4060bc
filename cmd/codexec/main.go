// Command codexec runs code submissions against test cases in a sandbox.
//
// Subcommands:
//
//	serve          - run the REST API (and optionally the MCP endpoint)
//	run            - execute a local file, in-process or on a server
//	render         - print the harness program generated for a file
//	validate       - check a file against the dangerous code rules
//	sandbox-agent  - run the agent that remote backends ship programs to
//
// The server reads its configuration from a YAML file (see --config) and
// CODEXEC_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codexec",
		Short:         "Sandboxed code execution for interview practice",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to the configuration file (default: $CODEXEC_CONFIG, ./config.yaml, /etc/codexec/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newRenderCmd(),
		newValidateCmd(),
		newAgentCmd(),
		newSandboxInitCmd(),
	)
	return root
}
