package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/ir"
)

// NewModulesCommand creates the modules command tree.
func NewModulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Inspect installed modules",
	}
	cmd.AddCommand(newModulesListCommand(rootOpts))
	return cmd
}

func newModulesListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		typ     string
		enabled bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := catalog.Filter{}
			if typ != "" {
				f.Type = ir.ModuleType(typ)
			}
			if enabled {
				f.Enabled = catalog.Bool(true)
			}
			return withSession(rootOpts, cmd, func(s *session) error {
				mods, err := s.store.ListModules(cmd.Context(), f)
				if err != nil {
					return s.fail("list modules", err)
				}
				if mods == nil {
					mods = []ir.Module{}
				}
				return s.out.Success(mods, renderModules(mods))
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "only list modules of this type")
	cmd.Flags().BoolVar(&enabled, "enabled", false, "only list enabled modules")
	return cmd
}
