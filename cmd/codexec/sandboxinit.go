package main

import (
	"github.com/spf13/cobra"

	"github.com/rhuss/codexec/pkg/sandboxinit"
)

const sandboxInitCmdName = "sandbox-init"

// newSandboxInitCmd is the launcher the process backend prefixes to every
// step: codexec sandbox-init [limits] -- argv...
func newSandboxInitCmd() *cobra.Command {
	limits := sandboxinit.DefaultLimits()

	cmd := &cobra.Command{
		Use:    sandboxInitCmdName + " [flags] -- COMMAND [ARG...]",
		Short:  "Apply resource limits and a seccomp filter, then exec COMMAND",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return sandboxinit.Exec(limits, args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	limits.AddFlags(cmd.Flags())
	return cmd
}
