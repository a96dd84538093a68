package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/service"
)

// NewScenarioCommand creates the scenario command tree.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Create and edit rebuild scenarios",
	}

	cmd.AddCommand(
		newScenarioCreateCommand(rootOpts),
		newScenarioShowCommand(rootOpts),
		newScenarioListCommand(rootOpts),
		newScenarioDiscardCommand(rootOpts),
		newScenarioChangeCommand(rootOpts),
		newScenarioSkinCommand(rootOpts),
		newScenarioRemoveUnallowedCommand(rootOpts),
		newScenarioVerifyCommand(rootOpts),
	)
	return cmd
}

// withSession opens a session around fn.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(s *session) error) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newScenarioCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var args service.CreateArgs
	var typ string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			args.Type = ir.ScenarioType(typ)
			return withSession(rootOpts, cmd, func(s *session) error {
				sc, err := s.svc.CreateScenario(cmd.Context(), args)
				if err != nil {
					return s.fail("create scenario", err)
				}
				return s.out.Success(sc, renderScenario(sc))
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(ir.ScenarioCommon), "scenario type (common|install|upgrade)")
	cmd.Flags().StringVar(&args.ReturnURL, "return-url", "", "URL to return to after the rebuild")
	return cmd
}

func newScenarioShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <scenario-id>",
		Short: "Show a scenario and its transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				sc, err := s.svc.Find(cmd.Context(), args[0])
				if err != nil {
					return s.fail("show scenario", err)
				}
				return s.out.Success(sc, renderScenario(sc))
			})
		},
	}
}

func newScenarioListCommand(rootOpts *RootOptions) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				list, err := s.svc.ListScenarios(cmd.Context(), ir.ScenarioType(typ))
				if err != nil {
					return s.fail("list scenarios", err)
				}
				if list == nil {
					list = []*ir.Scenario{}
				}
				return s.out.Success(list, renderScenarios(list))
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "only list scenarios of this type")
	return cmd
}

func newScenarioDiscardCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <scenario-id>",
		Short: "Delete a scenario and its finished rebuilds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				id, err := s.svc.DiscardScenario(cmd.Context(), args[0])
				if err != nil {
					return s.fail("discard scenario", err)
				}
				return s.out.Success(map[string]string{"discarded": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Scenario %s discarded\n", id)
				})
			})
		},
	}
}

func newScenarioChangeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "change <scenario-id> <action:Module-ID[@version]>...",
		Short: "Apply change units to a scenario",
		Long: `Apply change units to a scenario and rebuild its transitions.

Each unit is action:Module-ID with an optional @version. Actions are
install, install-disabled, enable, disable, upgrade and remove. Install
and upgrade need a version.

Examples:
  storebus scenario change <id> install:XC-Wishlist@2.0
  storebus scenario change <id> disable:XC-Reviews remove:XC-Old`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			units := make([]ir.ChangeUnit, 0, len(args)-1)
			for _, raw := range args[1:] {
				u, err := parseChangeUnit(raw)
				if err != nil {
					return usageError(newFormatter(rootOpts, cmd), "%v", err)
				}
				units = append(units, u)
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				sc, err := s.svc.ChangeModulesState(cmd.Context(), args[0], units)
				if err != nil {
					return s.fail("change modules state", err)
				}
				return s.out.Success(sc, renderScenario(sc))
			})
		},
	}
}

// parseChangeUnit parses "action:Module-ID[@version]".
func parseChangeUnit(raw string) (ir.ChangeUnit, error) {
	action, rest, ok := strings.Cut(raw, ":")
	if !ok || rest == "" {
		return ir.ChangeUnit{}, fmt.Errorf("change unit %q: want action:Module-ID[@version]", raw)
	}
	id, version, _ := strings.Cut(rest, "@")

	u := ir.ChangeUnit{ID: ir.ModuleID(id), Version: version}
	switch action {
	case "install":
		u.Install = true
	case "install-disabled":
		u.Install, u.Inactive = true, true
	case "enable":
		u.Enable = true
	case "disable":
		u.Disable = true
	case "upgrade":
		u.Upgrade = true
	case "remove":
		u.Remove = true
	default:
		return ir.ChangeUnit{}, fmt.Errorf("change unit %q: unknown action %q", raw, action)
	}
	return u, nil
}

func newScenarioSkinCommand(rootOpts *RootOptions) *cobra.Command {
	var args service.CreateArgs

	cmd := &cobra.Command{
		Use:   "skin <skin-module-id|standard>",
		Short: "Create a scenario that switches the active skin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				sc, err := s.svc.ChangeSkinState(cmd.Context(), ir.ModuleID(posArgs[0]), args)
				if err != nil {
					return s.fail("change skin", err)
				}
				return s.out.Success(sc, renderScenario(sc))
			})
		},
	}
	cmd.Flags().StringVar(&args.ReturnURL, "return-url", "", "URL to return to after the rebuild")
	return cmd
}

func newScenarioRemoveUnallowedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-unallowed",
		Short: "Create a scenario removing every unlicensed module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				sc, err := s.svc.RemoveUnallowedModules(cmd.Context())
				if err != nil {
					return s.fail("remove unallowed modules", err)
				}
				return s.out.Success(sc, renderScenario(sc))
			})
		},
	}
}

func newScenarioVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <scenario-id>",
		Short: "Check that a scenario still matches the installed modules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				if err := s.svc.VerifyScenario(cmd.Context(), args[0]); err != nil {
					return s.fail("verify scenario", err)
				}
				return s.out.Success(map[string]any{"scenario": args[0], "valid": true}, func(w io.Writer) {
					fmt.Fprintf(w, "\u2713 Scenario %s is up to date\n", args[0])
				})
			})
		},
	}
}
