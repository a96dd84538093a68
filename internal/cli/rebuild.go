package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/service"
)

// NewRebuildCommand creates the rebuild command tree.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Start, resume and inspect rebuilds",
		Long: `Start, resume and inspect rebuilds.

Commands that start a rebuild leave it running; pass --run to execute it
right away, or run "storebus rebuild resume" later. A rebuild interrupted
by a crash resumes from its last persisted step.`,
	}

	cmd.AddCommand(
		newRebuildStartCommand(rootOpts),
		newRebuildResumeCommand(rootOpts),
		newRebuildStatusCommand(rootOpts),
		newRebuildRedeployCommand(rootOpts),
		newRebuildInstallCommand(rootOpts),
		newRebuildEditionCommand(rootOpts),
		newRebuildRemoveUnallowedCommand(rootOpts),
		newRebuildLegacyUpgradeCommand(rootOpts),
	)
	return cmd
}

// starter begins a rebuild through one of the service flows.
type starter func(ctx context.Context, svc *service.Service) (ir.RebuildState, error)

func runStarter(rootOpts *RootOptions, cmd *cobra.Command, op string, run bool, start starter) error {
	return withSession(rootOpts, cmd, func(s *session) error {
		st, err := start(cmd.Context(), s.svc)
		if err != nil {
			return s.fail(op, err)
		}
		s.logger.Info("rebuild started", "rebuild", st.ID, "scenario", st.ScenarioID, "reason", st.Reason)
		if run && st.Status == ir.StatusRunning {
			st, err = s.svc.ResumeRebuild(cmd.Context(), st.ID)
			if err != nil {
				return s.fail(op, err)
			}
		}
		return s.out.Success(st, renderRebuild(st))
	})
}

func newRebuildStartCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		reason string
		run    bool
	)
	cmd := &cobra.Command{
		Use:   "start <scenario-id>",
		Short: "Start a rebuild of a stored scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStarter(rootOpts, cmd, "start rebuild", run, func(ctx context.Context, svc *service.Service) (ir.RebuildState, error) {
				return svc.StartRebuild(ctx, args[0], ir.RebuildReason(reason))
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", string(ir.ReasonModuleState), "rebuild reason (redeploy|upgrade|install|module-state)")
	cmd.Flags().BoolVar(&run, "run", false, "execute the rebuild after starting it")
	return cmd
}

func newRebuildResumeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [rebuild-id]",
		Short: "Run a rebuild until it completes or a step fails",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				st, err := s.svc.ResumeRebuild(cmd.Context(), optionalArg(args))
				if err != nil {
					return s.fail("resume rebuild", err)
				}
				return s.out.Success(st, renderRebuild(st))
			})
		},
	}
}

func newRebuildStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [rebuild-id]",
		Short: "Show a rebuild, or the running one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				st, err := s.svc.RebuildStatus(cmd.Context(), optionalArg(args))
				if err != nil {
					return s.fail("rebuild status", err)
				}
				return s.out.Success(st, renderRebuild(st))
			})
		},
	}
}

func newRebuildRedeployCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		returnURL string
		run       bool
	)
	cmd := &cobra.Command{
		Use:   "redeploy",
		Short: "Redeploy the installed modules without changing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStarter(rootOpts, cmd, "redeploy", run, func(ctx context.Context, svc *service.Service) (ir.RebuildState, error) {
				return svc.Redeploy(ctx, returnURL)
			})
		},
	}
	cmd.Flags().StringVar(&returnURL, "return-url", "", "URL to return to after the rebuild")
	cmd.Flags().BoolVar(&run, "run", false, "execute the rebuild after starting it")
	return cmd
}

func newRebuildInstallCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		req     service.InstallRequest
		enabled []string
		run     bool
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the store from the marketplace catalog",
		Long: `Reset the installed modules to the core set and install every plugin
and skin of the catalog. Modules named with --enable are installed
enabled, the rest disabled. A running rebuild is failed first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, id := range enabled {
				req.Enabled = append(req.Enabled, ir.ModuleID(id))
			}
			return runStarter(rootOpts, cmd, "install", run, func(ctx context.Context, svc *service.Service) (ir.RebuildState, error) {
				return svc.Install(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.CoreVersion, "core-version", "", "core release to install (default newest)")
	cmd.Flags().StringSliceVar(&enabled, "enable", nil, "modules to install enabled")
	cmd.Flags().StringVar(&req.ReturnURL, "return-url", "", "URL to return to after the rebuild")
	cmd.Flags().BoolVar(&run, "run", false, "execute the rebuild after starting it")
	return cmd
}

func newRebuildEditionCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		returnURL string
		run       bool
	)
	cmd := &cobra.Command{
		Use:   "edition <edition-name>",
		Short: "Switch the store to a catalog edition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStarter(rootOpts, cmd, "rebuild to edition", run, func(ctx context.Context, svc *service.Service) (ir.RebuildState, error) {
				return svc.RebuildToEdition(ctx, args[0], returnURL)
			})
		},
	}
	cmd.Flags().StringVar(&returnURL, "return-url", "", "URL to return to after the rebuild")
	cmd.Flags().BoolVar(&run, "run", false, "execute the rebuild after starting it")
	return cmd
}

func newRebuildRemoveUnallowedCommand(rootOpts *RootOptions) *cobra.Command {
	var run bool
	cmd := &cobra.Command{
		Use:   "remove-unallowed",
		Short: "Remove every unlicensed module in a rebuild",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStarter(rootOpts, cmd, "remove unallowed modules", run, func(ctx context.Context, svc *service.Service) (ir.RebuildState, error) {
				return svc.RemoveUnallowedAndRebuild(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "execute the rebuild after starting it")
	return cmd
}

func newRebuildLegacyUpgradeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "legacy-upgrade <module=version|remove|disable>...",
		Short: "Record an upgrade the previous upgrader already deployed",
		Long: `Record an upgrade the previous upgrader already deployed.

Each argument maps a module to its new version, or to remove or disable.
Legacy names are accepted: Core for the core module and Author\Name for
Author-Name. Deployment steps are skipped and the rebuild runs to the end.

Example:
  storebus rebuild legacy-upgrade Core=5.4.1 'XC\Reviews=1.1' XC-Stripe=remove`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modules := make(map[string]string, len(args))
			for _, raw := range args {
				id, version, ok := strings.Cut(raw, "=")
				if !ok || id == "" || version == "" {
					return usageError(newFormatter(rootOpts, cmd), "module %q: want module=version", raw)
				}
				modules[id] = version
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				st, err := s.svc.LegacyUpgrade(cmd.Context(), modules)
				if err != nil {
					return s.fail("legacy upgrade", err)
				}
				return s.out.Success(st, renderRebuild(st))
			})
		},
	}
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
