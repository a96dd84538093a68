package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/storebus/internal/ir"
)

// Artifacts performs the file-level side of a rebuild: fetching module
// packs, unpacking them, applying code changes and running upgrade hooks.
//
// Every method must be idempotent; a step may call it again for the same
// module after a crash or a recoverable failure. Wrap an error with Fatal
// to fail the rebuild instead of retrying.
type Artifacts interface {
	Download(ctx context.Context, m ir.Module) error
	Unpack(ctx context.Context, m ir.Module) error
	Apply(ctx context.Context, t ir.Transition) error
	RunHooks(ctx context.Context, t ir.Transition) error
}

// LogArtifacts records every call at debug level and does nothing else.
// It stands in where the real pack handling lives outside this process.
type LogArtifacts struct {
	Logger *slog.Logger
}

func (a LogArtifacts) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a LogArtifacts) Download(_ context.Context, m ir.Module) error {
	a.logger().Debug("download pack", "module", m.ID, "version", m.Version)
	return nil
}

func (a LogArtifacts) Unpack(_ context.Context, m ir.Module) error {
	a.logger().Debug("unpack pack", "module", m.ID, "version", m.Version)
	return nil
}

func (a LogArtifacts) Apply(_ context.Context, t ir.Transition) error {
	a.logger().Debug("apply change", "module", t.ModuleID, "transition", t.Kind, "version", t.Version)
	return nil
}

func (a LogArtifacts) RunHooks(_ context.Context, t ir.Transition) error {
	a.logger().Debug("run hooks", "module", t.ModuleID, "transition", t.Kind)
	return nil
}
