package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/storebus/internal/compiler"
)

// ValidationResult holds catalog validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Modules  int                        `json:"modules"`
	Editions int                        `json:"editions"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewCatalogCommand creates the catalog command tree.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with the CUE marketplace catalog",
	}
	cmd.AddCommand(newCatalogValidateCommand(rootOpts))
	return cmd
}

func newCatalogValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog-dir]",
		Short: "Validate a catalog without touching the database",
		Long: `Load every CUE file of a catalog directory, compile the modules and
editions, and check them: module ids, versions, dependency and
incompatibility references, and edition contents. Dependency cycles are
reported as warnings.

The directory defaults to --catalog, then to catalog_dir in the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, optionalArg(args), cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if dir == "" {
		cfg, err := loadConfig(opts)
		if err != nil {
			return report(formatter, ErrCodeConfig, ExitCommandError, "failed to load config", err, nil)
		}
		dir = cfg.CatalogDir
	}
	if dir == "" {
		return usageError(formatter, "no catalog directory: pass one or set catalog_dir")
	}

	res, loadErrors := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if res == nil && len(loadErrors) > 0 {
		var loadErr *compiler.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return report(formatter, loadErr.Code, ExitCommandError, loadErr.Message, nil, nil)
		}
		return report(formatter, ErrCodeCatalog, ExitCommandError, "failed to load catalog", loadErrors[0], nil)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, dir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   positionField(loadErr.Pos),
				Message: loadErr.Message,
				Code:    loadErr.Code,
			})
			continue
		}
		validationErrors = append(validationErrors, compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeCatalog})
	}
	validationErrors = append(validationErrors, compiler.ValidateCatalog(res.Modules, res.Catalog.Editions)...)

	result := ValidationResult{
		Valid:    len(validationErrors) == 0,
		Modules:  res.Catalog.Marketplace.Len(),
		Editions: len(res.Catalog.Editions),
		Errors:   validationErrors,
		Warnings: compiler.AnalyzeCycles(res.Modules),
	}
	for _, w := range result.Warnings {
		formatter.VerboseLog("warning: %s", w.Message)
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func positionField(pos token.Pos) string {
	if pos.IsValid() {
		return fmt.Sprintf("%s:%d", pos.Filename(), pos.Line())
	}
	return "load"
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "\u2713 Catalog valid (%d modules, %d editions)\n", result.Modules, result.Editions)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	return nil
}

// outputValidationErrors reports every validation error. Validation
// failures exit with ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
