package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newHierarchyCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hierarchy",
		Short: "Inspect and change the organization tree",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <org_id>",
		Short: "Print the chain from an organization up to its root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(env, func(s *serviceSet) error {
				chain, err := s.hierarchy.Chain(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(chain.Chain) == 0 {
					return fmt.Errorf("organization %s not found", args[0])
				}
				for i, entry := range chain.Chain {
					fmt.Fprintf(env.Out, "%s%s (%s)\n", strings.Repeat("  ", i), entry.Name, entry.ID)
				}
				fmt.Fprintf(env.Out, "depth: %d\n", chain.Depth)
				return nil
			})
		},
	})

	var parent string
	var root bool
	move := &cobra.Command{
		Use:   "move <org_id>",
		Short: "Re-parent an organization",
		Long: `Re-parent an organization. Cycles are refused.

Examples:
  enablementctl hierarchy move team-a --parent acme
  enablementctl hierarchy move team-a --root`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (parent == "") == !root {
				return fmt.Errorf("exactly one of --parent or --root is required")
			}
			var parentID *string
			if !root {
				parentID = &parent
			}
			return withServices(env, func(s *serviceSet) error {
				if err := s.toggles.MoveOrganization(cmd.Context(), cliCaller, args[0], parentID); err != nil {
					return err
				}
				target := "root"
				if parentID != nil {
					target = *parentID
				}
				fmt.Fprintf(env.Out, "[OK] %s moved under %s\n", args[0], target)
				return nil
			})
		},
	}
	move.Flags().StringVar(&parent, "parent", "", "New parent organization id")
	move.Flags().BoolVar(&root, "root", false, "Make the organization a root")
	cmd.AddCommand(move)

	return cmd
}
