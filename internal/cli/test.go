package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storebus/internal/harness"
	"github.com/roach88/storebus/internal/ir"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // fixture filter (glob pattern on the file name)
	GoldenDir string // directory of <fixture name>.golden files
}

// FixtureResult holds the result of a single fixture run.
type FixtureResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Fixtures []FixtureResult `json:"fixtures"`
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	Total    int             `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <fixtures-dir>",
		Short: "Run scenario builder fixtures",
		Long: `Run YAML builder fixtures against an in-memory store.

Each fixture seeds installed and marketplace modules, applies change
units step by step, optionally runs the rebuild, and checks its
assertions. With --golden, the canonical snapshot of every run is also
compared with <golden-dir>/<fixture name>.golden.

Exit codes:
  0 - All fixtures passed
  1 - One or more fixtures failed
  2 - Command error (invalid paths, etc.)

Examples:
  storebus test ./fixtures
  storebus test ./fixtures --filter "remove-*"
  storebus test ./fixtures --golden ./golden --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter fixtures by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden snapshots")

	return cmd
}

func runTests(opts *TestOptions, fixturesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(fixturesDir); os.IsNotExist(err) {
		return usageError(formatter, "fixtures directory not found: %s", fixturesDir)
	}
	if opts.Update && opts.GoldenDir == "" {
		return usageError(formatter, "--update needs --golden")
	}

	files, err := findFixtureFiles(fixturesDir, opts.Filter)
	if err != nil {
		return usageError(formatter, "failed to find fixtures: %v", err)
	}

	result := TestResult{
		Fixtures: make([]FixtureResult, 0, len(files)),
		Total:    len(files),
	}
	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No fixtures found.")
		return nil
	}

	for _, file := range files {
		fr := runFixture(file, opts, cmd)
		if opts.Format != "json" {
			printFixtureResult(cmd, fr)
		}
		result.Fixtures = append(result.Fixtures, fr)
		if fr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findFixtureFiles finds the YAML fixtures directly inside dir, sorted.
func findFixtureFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// runFixture loads and runs one fixture, then compares its snapshot.
func runFixture(file string, opts *TestOptions, cmd *cobra.Command) FixtureResult {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	f, err := harness.LoadFixture(file)
	if err != nil {
		return FixtureResult{Name: name, Errors: []string{fmt.Sprintf("failed to load fixture: %v", err)}}
	}
	name = f.Name

	result, err := harness.Run(cmd.Context(), f)
	if err != nil {
		return FixtureResult{Name: name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}
	fr := FixtureResult{Name: name, Pass: result.Pass, Errors: result.Errors}

	if opts.GoldenDir == "" {
		return fr
	}
	snapshot, err := ir.MarshalCanonical(harness.Snapshot(f.Name, result))
	if err != nil {
		return FixtureResult{Name: name, Errors: []string{fmt.Sprintf("failed to marshal snapshot: %v", err)}}
	}
	goldenPath := filepath.Join(opts.GoldenDir, f.Name+".golden")

	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return FixtureResult{Name: name, Errors: []string{fmt.Sprintf("failed to create golden directory: %v", err)}}
		}
		if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
			return FixtureResult{Name: name, Errors: []string{fmt.Sprintf("failed to write golden file: %v", err)}}
		}
		return fr
	}

	want, err := os.ReadFile(goldenPath)
	if err != nil {
		fr.Pass = false
		fr.Errors = append(fr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return fr
	}
	if !bytes.Equal(want, snapshot) {
		fr.Pass = false
		fr.Errors = append(fr.Errors, "snapshot does not match golden file (run with --update to regenerate)")
	}
	return fr
}

func printFixtureResult(cmd *cobra.Command, fr FixtureResult) {
	w := cmd.OutOrStdout()
	if fr.Pass {
		fmt.Fprintf(w, "\u2713 %s\n", fr.Name)
		return
	}
	fmt.Fprintf(w, "\u2717 %s\n", fr.Name)
	for _, e := range fr.Errors {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d fixture(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d fixture(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d fixture(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "\u2713 All fixtures passed")
	return nil
}
