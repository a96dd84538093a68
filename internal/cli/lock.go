package cli

import (
	"github.com/spf13/cobra"
)

// NewLockCommand creates the lock command tree.
func NewLockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect or clear the rebuild lock",
	}
	cmd.AddCommand(newLockStatusCommand(rootOpts), newLockClearCommand(rootOpts))
	return cmd
}

func newLockStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who holds the rebuild lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				lease, held, err := s.svc.LockStatus(cmd.Context())
				if err != nil {
					return s.fail("lock status", err)
				}
				v := newLeaseView(lease, held)
				return s.out.Success(v, renderLease(v, "held"))
			})
		},
	}
}

func newLockClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the rebuild lock whoever holds it",
		Long: `Remove the rebuild lock whoever holds it.

Use this after a rebuild failed fatally and pinned the lock, or when a
crashed process left a lease behind. The rebuild itself is not changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				evicted, found, err := s.svc.ClearRebuildLock(cmd.Context())
				if err != nil {
					return s.fail("clear rebuild lock", err)
				}
				if found {
					s.logger.Warn("rebuild lock cleared", "holder", evicted.Holder, "pinned", evicted.Pinned)
				}
				v := newLeaseView(evicted, found)
				return s.out.Success(v, renderLease(v, "cleared, was held"))
			})
		},
	}
}
