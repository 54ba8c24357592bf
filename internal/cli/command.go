package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/clinical-records-service/internal/app"
	"github.com/sandeepkv93/clinical-records-service/internal/config"
	"github.com/sandeepkv93/clinical-records-service/internal/database"
	"github.com/sandeepkv93/clinical-records-service/internal/di"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

type options struct {
	envFiles []string
}

// Initializer builds the application graph. Tests swap it for a lighter one.
type Initializer func(ctx context.Context, cfg *config.Config) (*app.App, error)

func NewRootCommand() *cobra.Command {
	return newRootCommand(di.InitializeApp)
}

func newRootCommand(initialize Initializer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "clinical-records",
		Short:         "Clinical records API server and maintenance tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before reading the environment")
	cmd.AddCommand(
		newServeCommand(opts, initialize),
		newMigrateCommand(opts),
		newSessionsCommand(opts, initialize),
		newUsersCommand(opts, initialize),
	)
	return cmd
}

func (o *options) loadConfig() (*config.Config, error) {
	return config.Load(o.envFiles...)
}

func newServeCommand(opts *options, initialize Initializer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := initialize(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed roles, permissions and the system actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, lp, err := observability.NewLogger(cmd.Context(), cfg, os.Stdout)
			if err != nil {
				return err
			}
			if lp != nil {
				defer func() { _ = lp.Shutdown(context.WithoutCancel(cmd.Context())) }()
			}
			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := database.Seed(db); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			logger.Info("migrations applied", "driver", cfg.DatabaseDriver)
			return nil
		},
	}
}

func newSessionsCommand(opts *options, initialize Initializer) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Session maintenance"}
	var retention time.Duration
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Hard-delete sessions that ended longer ago than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, initialize, func(ctx context.Context, a *app.App) error {
				window := retention
				if window <= 0 {
					window = a.Config.SessionRetention
				}
				n, err := a.Sessions.CleanupExpired(ctx, window)
				if err != nil {
					return fmt.Errorf("cleanup sessions: %w", err)
				}
				a.Logger.Info("expired sessions removed", "count", n, "retention", window.String())
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d sessions\n", n)
				return nil
			})
		},
	}
	cleanup.Flags().DurationVar(&retention, "retention", 0, "override SESSION_RETENTION")
	cmd.AddCommand(cleanup)
	return cmd
}

func newUsersCommand(opts *options, initialize Initializer) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "User administration"}
	var email, name, password string
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			return withApp(cmd, opts, initialize, func(ctx context.Context, a *app.App) error {
				ctx = reqctx.WithActor(ctx, reqctx.Actor{UserID: domain.SystemUserID, RoleCode: domain.RoleCodeSystem})
				u, err := a.Users.Create(ctx, service.CreateUserInput{
					Email:    email,
					Name:     name,
					Password: password,
					RoleCode: domain.RoleCodeAdmin,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	createAdmin.Flags().StringVar(&email, "email", "", "administrator email")
	createAdmin.Flags().StringVar(&name, "name", "Administrator", "display name")
	createAdmin.Flags().StringVar(&password, "password", "", "initial password (defaults to $ADMIN_PASSWORD)")
	_ = createAdmin.MarkFlagRequired("email")
	cmd.AddCommand(createAdmin)
	return cmd
}

func withApp(cmd *cobra.Command, opts *options, initialize Initializer, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := initialize(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
	return fn(ctx, a)
}
