package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/client"
	"github.com/rhuss/codexec/pkg/runner"
)

// submissionFlags are shared by the commands that turn a source file into
// a submission.
type submissionFlags struct {
	language string
	tests    string
	format   string
	shape    string
}

func (f *submissionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "language of the source file (default: inferred from the extension)")
	cmd.Flags().StringVarP(&f.tests, "tests", "t", "", "JSON file with an array of {\"input\", \"expected\"} test cases (default: demo mode)")
	cmd.Flags().StringVar(&f.format, "format", string(api.TestFormatJSON), "test value format: json or literal")
	cmd.Flags().StringVar(&f.shape, "shape", string(api.ParamShapeAuto), "how inputs are passed to solution(): auto, linked_list, positional or single")
}

// submission reads the source file at path and the optional test file.
func (f *submissionFlags) submission(path string) (*api.Submission, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lang := api.Language(f.language)
	if lang == "" {
		if lang, err = inferLanguage(path); err != nil {
			return nil, err
		}
	}

	sub := &api.Submission{
		Code:       string(code),
		Language:   lang,
		TestFormat: api.TestFormat(f.format),
		ParamShape: api.ParamShape(f.shape),
	}
	if f.tests != "" {
		if sub.TestCases, err = readTestCases(f.tests); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func inferLanguage(path string) (api.Language, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return api.LanguagePython, nil
	case ".js", ".mjs", ".cjs":
		return api.LanguageJavaScript, nil
	case ".ts", ".mts":
		return api.LanguageTypeScript, nil
	}
	return "", fmt.Errorf("cannot infer the language of %s, use --language", path)
}

func readTestCases(path string) ([]api.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cases []api.TestCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cases, nil
}

var errExecutionFailed = errors.New("execution failed or tests did not pass")

func newRunCmd() *cobra.Command {
	var (
		sf      submissionFlags
		server  string
		apiKey  string
		local   bool
		output  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a source file against test cases",
		Long: `Executes FILE and reports per-test results.

JavaScript and TypeScript run in-process first. With --server, results
that did not succeed locally and every other language are executed by the
server. Local results are marked untrusted since they are not isolated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := sf.submission(args[0])
			if err != nil {
				return err
			}

			var remote *client.Client
			if server != "" {
				remote = client.New(server, client.WithAPIKey(apiKey))
			}
			var inproc *runner.InProcess
			if local {
				inproc = runner.NewInProcess(runner.InProcessConfig{Timeout: timeout})
			}
			exec, err := client.NewExecutor(remote, inproc)
			if err != nil {
				return err
			}

			res, err := exec.Execute(cmd.Context(), sub)
			if err != nil {
				return err
			}
			if err := printResult(cmd.OutOrStdout(), res, output); err != nil {
				return err
			}
			if !res.Success || res.Passed() < len(res.TestResults) {
				return errExecutionFailed
			}
			return nil
		},
	}

	sf.register(cmd)
	cmd.Flags().StringVarP(&server, "server", "s", os.Getenv("CODEXEC_SERVER"), "codexec server URL, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("CODEXEC_API_KEY"), "API key sent to the server")
	cmd.Flags().BoolVar(&local, "local", true, "run JavaScript and TypeScript in-process before asking the server")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "in-process execution timeout")
	return cmd
}

func printResult(w io.Writer, res *client.Result, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.Output != "" {
		fmt.Fprintln(w, strings.TrimRight(res.Output, "\n"))
	}
	if res.Error != "" {
		fmt.Fprintf(w, "error (%s): %s\n", res.ErrorKind, strings.TrimRight(res.Error, "\n"))
	}
	if len(res.TestResults) > 0 {
		fmt.Fprintf(w, "%d/%d tests passed", res.Passed(), len(res.TestResults))
	} else {
		fmt.Fprint(w, "no test results")
	}
	where := "server"
	if !res.Trusted {
		where = "in-process, untrusted"
	}
	fmt.Fprintf(w, " in %dms (%s)\n", res.ExecutionTime, where)
	return nil
}
