package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phonginreallife/enablement/db"
)

func newMigrateCmd(env *Env) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		Long: `Apply every embedded migration in order. Migrations are idempotent.

Examples:
  enablementctl migrate            # Apply migrations
  enablementctl migrate --dry-run  # List migrations without applying`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := db.Migrations()
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Found %d migration files\n", len(names))
			for _, name := range names {
				fmt.Fprintf(env.Out, "  - %s\n", filepath.Base(name))
			}
			if dryRun {
				fmt.Fprintln(env.Out, "[DRY-RUN] No changes applied")
				return nil
			}

			pg, _, err := env.Connect()
			if err != nil {
				return err
			}
			if pg == nil {
				return fmt.Errorf("migrate needs a database connection")
			}
			defer pg.Close()

			if err := db.Migrate(context.Background(), pg); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "[OK] Migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List migrations without applying them")
	return cmd
}
