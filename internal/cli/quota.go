package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phonginreallife/enablement/db"
)

func newQuotaCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and reset organization quotas",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <org_id>",
		Short: "Print quota usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(env, func(s *serviceSet) error {
				quota, err := s.quotas.GetOrCreate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, t := range db.QuotaTypes {
					current, limit := quota.Usage(t)
					fmt.Fprintf(env.Out, "%-18s %d/%d\n", t, current, limit)
				}
				return nil
			})
		},
	})

	var quotaType string
	reset := &cobra.Command{
		Use:   "reset <org_id>",
		Short: "Zero usage counters",
		Long: `Zero one usage counter, or all of them when --type is omitted.

Examples:
  enablementctl quota reset acme
  enablementctl quota reset acme --type sharing_requests`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var only *db.QuotaType
			if quotaType != "" {
				t := db.QuotaType(quotaType)
				only = &t
			}
			return withServices(env, func(s *serviceSet) error {
				if _, err := s.quotas.Reset(cmd.Context(), args[0], only); err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "[OK] quota usage reset for %s\n", args[0])
				return nil
			})
		},
	}
	reset.Flags().StringVar(&quotaType, "type", "", "Quota type: context_items, global_access or sharing_requests")
	cmd.AddCommand(reset)

	return cmd
}
