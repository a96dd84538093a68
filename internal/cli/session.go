package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/storebus/internal/compiler"
	"github.com/roach88/storebus/internal/config"
	"github.com/roach88/storebus/internal/engine"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/scenario"
	"github.com/roach88/storebus/internal/service"
	"github.com/roach88/storebus/internal/store"
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric         = "E001"
	ErrCodeConfig          = "E002"
	ErrCodeCatalog         = "E003"
	ErrCodeDatabase        = "E004"
	ErrCodeInvalidRequest  = "E010"
	ErrCodeNotFound        = "E011"
	ErrCodeRuleViolation   = "E012"
	ErrCodeRebuildActive   = "E013"
	ErrCodeLockHeld        = "E014"
	ErrCodeDemoMode        = "E015"
	ErrCodeScenarioInUse   = "E016"
	ErrCodeNoActiveRebuild = "E017"
	ErrCodeStepFailed      = "E018"
	ErrCodeScenarioDrift   = "E019"
	ErrCodeNoFixpoint      = "E020"
	ErrCodeRebuildFinished = "E021"
	ErrCodeLeaseLost       = "E022"
	ErrCodeTestFailed      = "E030"
)

// session is what a service command runs against: the merged
// configuration, the open store and a service over the compiled catalog.
type session struct {
	cfg    config.Config
	store  *store.Store
	svc    *service.Service
	logger *slog.Logger
	out    *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads the config file and applies the flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.CatalogDir != "" {
		cfg.CatalogDir = opts.CatalogDir
	}
	return cfg, nil
}

// openSession loads configuration and catalog, opens the store and builds
// the service. Failures are reported through the formatter.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd)
	logger := opts.Logger()

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, report(out, ErrCodeConfig, ExitCommandError, "failed to load config", err, nil)
	}
	if cfg.CatalogDir == "" {
		return nil, report(out, ErrCodeConfig, ExitCommandError, "no catalog directory: set catalog_dir or pass --catalog", nil, nil)
	}

	res, errs := compiler.LoadDir(cfg.CatalogDir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, report(out, ErrCodeCatalog, ExitCommandError, "failed to load catalog", errs[0], nil)
	}
	logger.Debug("catalog loaded", "dir", cfg.CatalogDir, "files", res.FileCount, "releases", len(res.Modules))

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, report(out, ErrCodeDatabase, ExitCommandError, "failed to open database", err, nil)
	}
	logger.Debug("database ready", "path", cfg.Database)

	svc, err := service.New(st, res.Catalog, cfg, service.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, report(out, ErrCodeConfig, ExitCommandError, "failed to build service", err, nil)
	}
	return &session{cfg: cfg, store: st, svc: svc, logger: logger, out: out}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// fail reports a service error and returns the matching ExitError.
func (s *session) fail(op string, err error) error {
	code, exit, details := classify(err)
	return report(s.out, code, exit, op, err, details)
}

// report prints the error in the configured format and returns the
// ExitError for main.
func report(out *OutputFormatter, code string, exit int, message string, err error, details any) error {
	exitErr := WrapExitError(exit, message, err)
	_ = out.Error(code, exitErr.Error(), details)
	return exitErr
}

// classify maps a service error to a CLI error code, an exit code and
// optional details.
func classify(err error) (string, int, any) {
	var (
		construction *ir.ConstructionError
		rule         *scenario.RuleError
		fixpoint     *scenario.FixpointError
		step         *engine.StepError
		held         *engine.LockHeldError
	)
	switch {
	case errors.As(err, &rule):
		return ErrCodeRuleViolation, ExitFailure, map[string]string{"rule": string(rule.Code), "module": string(rule.Module)}
	case errors.As(err, &step):
		return ErrCodeStepFailed, ExitFailure, map[string]any{"step": step.Step, "module": step.Module, "fatal": step.Fatal}
	case errors.As(err, &construction), errors.Is(err, service.ErrInvalidRequest):
		return ErrCodeInvalidRequest, ExitCommandError, nil
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound, ExitCommandError, nil
	case errors.As(err, &fixpoint):
		return ErrCodeNoFixpoint, ExitFailure, map[string]any{"passes": fixpoint.Passes, "pending": fixpoint.Pending}
	case errors.As(err, &held):
		return ErrCodeLockHeld, ExitFailure, map[string]any{"holder": held.Holder, "pinned": held.Pinned}
	case errors.Is(err, engine.ErrRebuildActive):
		return ErrCodeRebuildActive, ExitFailure, nil
	case errors.Is(err, service.ErrDemoMode):
		return ErrCodeDemoMode, ExitFailure, nil
	case errors.Is(err, service.ErrScenarioInUse):
		return ErrCodeScenarioInUse, ExitFailure, nil
	case errors.Is(err, service.ErrNoActiveRebuild):
		return ErrCodeNoActiveRebuild, ExitFailure, nil
	case errors.Is(err, engine.ErrRebuildFinished):
		return ErrCodeRebuildFinished, ExitFailure, nil
	case errors.Is(err, engine.ErrLeaseLost):
		return ErrCodeLeaseLost, ExitFailure, nil
	case errors.Is(err, scenario.ErrScenarioDrift):
		return ErrCodeScenarioDrift, ExitFailure, nil
	}
	return ErrCodeGeneric, ExitFailure, nil
}

// usageError reports malformed command arguments.
func usageError(out *OutputFormatter, format string, args ...any) error {
	return report(out, ErrCodeInvalidRequest, ExitCommandError, fmt.Sprintf(format, args...), nil, nil)
}
