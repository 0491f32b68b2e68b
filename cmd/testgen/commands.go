package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"testgen/internal/app"
	"testgen/internal/config"
	"testgen/internal/presenter"
	"testgen/internal/prompt"
	"testgen/internal/testcase"
)

// buildFunc wires the generator; tests replace it.
type buildFunc func(w io.Writer, level string) (app.Deps, error)

type generateFlags struct {
	testingType string
	numCases    int
	file        string
	jsonOut     string
}

type parseFlags struct {
	testingType string
	expected    int
	allowed     []string
	jsonOut     string
}

func newRootCmd(build buildFunc) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "testgen",
		Short:         "Generate test cases from requirements",
		Long:          "Generate structured QA test cases from natural-language requirements with a language model, or parse saved model output.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newGenerateCmd(build, &logLevel))
	root.AddCommand(newParseCmd())
	return root
}

func newGenerateCmd(build buildFunc, logLevel *string) *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate [requirement]",
		Short: "Generate test cases for one requirement or a file of requirements",
		Long:  "Generate test cases for the requirement given as an argument, or for every non-empty line of --file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirements, err := collectRequirements(args, flags.file)
			if err != nil {
				return err
			}
			deps, err := build(cmd.ErrOrStderr(), *logLevel)
			if err != nil {
				return err
			}
			return runGenerate(cmd, deps, requirements, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.testingType, "type", "t", "", "Testing type (functional, regression, security, ...); defaults to DEFAULT_TESTING_TYPE")
	cmd.Flags().IntVarP(&flags.numCases, "num", "n", 0, "Number of test cases to request; defaults to NUM_CASES")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "File with one requirement per line")
	cmd.Flags().StringVar(&flags.jsonOut, "json", "", "Write results to this JSON file instead of the terminal")
	return cmd
}

func runGenerate(cmd *cobra.Command, deps app.Deps, requirements []string, flags generateFlags) error {
	if flags.numCases <= 0 {
		flags.numCases = deps.Config.NumCases
	}
	out := cmd.OutOrStdout()
	term := presenter.NewTerminal(out)

	var progress *presenter.Progress
	if len(requirements) > 1 {
		progress = presenter.NewProgress(cmd.ErrOrStderr(), len(requirements))
	}

	var (
		reports      []presenter.Report
		done, failed int
		lastErr      error
	)
	for _, req := range requirements {
		res, err := deps.Generator.Generate(cmd.Context(), prompt.Request{
			Requirement: req,
			TestingType: flags.testingType,
			NumCases:    flags.numCases,
		})
		if err != nil {
			failed++
			lastErr = err
			deps.Log.Error("generation failed", "requirement", truncate(req, 60), "err", err)
		} else {
			done++
			reports = append(reports, presenter.Report{
				Requirement: req,
				TestingType: flags.testingType,
				GeneratedAt: time.Now().UTC(),
				Result:      res,
			})
		}
		if progress != nil {
			progress.Update(done, failed)
		}
	}
	if progress != nil {
		progress.Finish()
	}

	if flags.jsonOut != "" {
		if err := presenter.WriteJSON(flags.jsonOut, reports); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d result(s) to %s\n", len(reports), flags.jsonOut)
	} else {
		for i, r := range reports {
			if len(reports) > 1 {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "== %s ==\n", truncate(r.Requirement, 72))
			}
			term.Render(r.Result)
		}
	}

	switch {
	case failed == 0:
		return nil
	case len(requirements) == 1:
		return lastErr
	default:
		return fmt.Errorf("%d of %d requirements failed, last error: %w", failed, len(requirements), lastErr)
	}
}

func newParseCmd() *cobra.Command {
	var flags parseFlags

	cmd := &cobra.Command{
		Use:   "parse <file|->",
		Short: "Parse saved model output into test cases",
		Long:  "Parse raw model output from a file, or stdin when the argument is '-', and report accepted and rejected test cases.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return runParse(cmd, config.Load(), raw, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.testingType, "type", "t", "", "Test type for records that name none; defaults to DEFAULT_TESTING_TYPE")
	cmd.Flags().IntVarP(&flags.expected, "expected", "e", 0, "Number of test cases that were requested")
	cmd.Flags().StringSliceVar(&flags.allowed, "allowed", nil, "Allowed test types (comma separated); defaults to TEST_TYPES")
	cmd.Flags().StringVar(&flags.jsonOut, "json", "", "Write the result to this JSON file instead of the terminal")
	return cmd
}

func runParse(cmd *cobra.Command, cfg config.Config, raw string, flags parseFlags) error {
	opts := testcase.Options{
		ExpectedCount: flags.expected,
		AllowedTypes:  flags.allowed,
		DefaultType:   flags.testingType,
	}
	if len(opts.AllowedTypes) == 0 {
		opts.AllowedTypes = cfg.TestTypes
	}
	if opts.DefaultType == "" {
		opts.DefaultType = cfg.DefaultTestingType
	}

	res, err := testcase.Parse(raw, opts)
	if err != nil {
		return err
	}

	if flags.jsonOut != "" {
		report := presenter.Report{TestingType: opts.DefaultType, GeneratedAt: time.Now().UTC(), Result: res}
		if err := presenter.WriteJSON(flags.jsonOut, []presenter.Report{report}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote result to %s\n", flags.jsonOut)
		return nil
	}
	presenter.NewTerminal(cmd.OutOrStdout()).Render(res)
	return nil
}

// collectRequirements returns the single argument, or the non-empty lines of path.
func collectRequirements(args []string, path string) ([]string, error) {
	switch {
	case path != "" && len(args) > 0:
		return nil, fmt.Errorf("give a requirement or --file, not both")
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open requirements file: %w", err)
		}
		defer f.Close()

		var out []string
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				out = append(out, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read requirements file: %w", err)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%s contains no requirements", path)
		}
		return out, nil
	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		return args, nil
	default:
		return nil, prompt.ErrEmptyRequirement
	}
}

func readInput(stdin io.Reader, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read model output: %w", err)
	}
	return string(data), nil
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
