package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/codexec/pkg/harness"
)

func newRenderCmd() *cobra.Command {
	var (
		sf       submissionFlags
		showData bool
	)

	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Print the harness program generated for a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := sf.submission(args[0])
			if err != nil {
				return err
			}

			cases, err := harness.NormalizeCases(sub.TestFormat, sub.TestCases)
			if err != nil {
				return err
			}

			if showData {
				doc, err := harness.EncodeCases(cases)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
				return err
			}

			src, err := harness.Render(harness.Request{
				Language: sub.Language,
				Code:     sub.Code,
				Cases:    cases,
				Shape:    sub.ParamShape,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), src)
			return err
		},
	}

	sf.register(cmd)
	cmd.Flags().BoolVar(&showData, "show-data", false, "print the normalized test data document instead of the program")
	return cmd
}
