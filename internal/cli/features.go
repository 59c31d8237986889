package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newFeaturesCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Inspect and toggle RAG features",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <org_id>",
		Short: "Print the resolved feature set of an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(env, func(s *serviceSet) error {
				resolved, err := s.resolver.ResolveFeatures(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "FEATURE\tENABLED\tSOURCE\tREASON")
				for _, f := range resolved.Features {
					fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", f.RAGFeature, f.Enabled, f.InheritanceSource, f.OverrideReason)
				}
				return w.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <org_id> <feature> <true|false>",
		Short: "Set an explicit toggle for an organization",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("invalid enabled value %q", args[2])
			}
			return withServices(env, func(s *serviceSet) error {
				if _, err := s.toggles.Set(cmd.Context(), cliCaller, args[0], args[1], enabled); err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "[OK] %s %s=%t\n", args[0], args[1], enabled)
				return nil
			})
		},
	})

	return cmd
}
