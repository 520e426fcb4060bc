package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/codexec/pkg/validator"
)

func newValidateCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check source files against the dangerous code rules",
		Long:  "Checks each FILE against the built-in rules plus validation.extra_patterns from the configuration.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			v, err := validator.New(extraPatterns(cfg.Validation))
			if err != nil {
				return err
			}

			rejected := 0
			for _, path := range args {
				sf := submissionFlags{language: language}
				sub, err := sf.submission(path)
				if err != nil {
					return err
				}
				if ok, rule := v.Check(sub.Code, sub.Language); !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: rejected by rule %s\n", path, rule)
					rejected++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			if rejected > 0 {
				return fmt.Errorf("%d of %d files rejected", rejected, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language of the files (default: inferred from the extension)")
	return cmd
}
