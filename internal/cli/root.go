package cli

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/internal/config"
	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/services"
	"github.com/phonginreallife/enablement/store"
)

// Env is what commands run against. Connect is replaced in tests.
type Env struct {
	Out     io.Writer
	Logger  *logrus.Logger
	Connect func() (*sql.DB, *store.Store, error)
}

// cliCaller is the actor recorded for every CLI mutation
var cliCaller = authz.Caller{
	UserID: db.GetSystemUserBySource("cli"),
	Role:   authz.RoleSystemAdmin,
}

// NewRootCmd builds the enablementctl command tree
func NewRootCmd(env *Env) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "enablementctl",
		Short:         "Feature enablement admin CLI",
		Long:          `Administer organizations, RAG feature toggles and quotas from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if env.Connect != nil {
				return nil
			}
			if err := config.LoadConfig(configPath); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			env.Logger = observability.NewLogger(config.App.Log.Level, config.App.Log.Format, os.Stderr)
			env.Connect = postgres
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./config/dev.config.yaml)")

	root.AddCommand(newMigrateCmd(env))
	root.AddCommand(newHierarchyCmd(env))
	root.AddCommand(newFeaturesCmd(env))
	root.AddCommand(newQuotaCmd(env))
	return root
}

// Execute runs the CLI against the configured database
func Execute() {
	env := &Env{Out: os.Stdout, Logger: observability.NewLogger("info", "text", os.Stderr)}
	if err := NewRootCmd(env).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func postgres() (*sql.DB, *store.Store, error) {
	if config.App.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL environment variable (or config) is required")
	}
	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pg.Ping(); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pg, store.NewPostgresStore(pg), nil
}

// serviceSet wires the service graph over repos without cache or audit queue
type serviceSet struct {
	hierarchy *services.HierarchyResolver
	resolver  *services.InheritanceResolver
	toggles   *services.FeatureToggleService
	quotas    *services.QuotaEnforcer
}

func newServiceSet(env *Env, repos *store.Store) *serviceSet {
	maxDepth := config.App.Hierarchy.MaxDepth
	defaults := config.App.Quota.Defaults

	checker := authz.NewPermissionChecker(repos.Toggles, repos.Catalog)
	hierarchy := services.NewHierarchyResolver(repos.Organizations, maxDepth)
	resolver := services.NewInheritanceResolver(hierarchy, repos, nil, nil, env.Logger)
	return &serviceSet{
		hierarchy: hierarchy,
		resolver:  resolver,
		toggles:   services.NewFeatureToggleService(checker, repos, resolver, nil, nil, env.Logger),
		quotas:    services.NewQuotaEnforcer(repos, defaults, nil, env.Logger),
	}
}

// withServices connects, runs fn and closes the connection
func withServices(env *Env, fn func(*serviceSet) error) error {
	pg, repos, err := env.Connect()
	if err != nil {
		return err
	}
	if pg != nil {
		defer pg.Close()
	}
	return fn(newServiceSet(env, repos))
}
