// Command chatctl is the operator CLI for chatmeter: migrations, balance
// reconciliation and credential management against the live store.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/chatmeter/chatmeter/internal/cache"
	"github.com/chatmeter/chatmeter/internal/logging"
	"github.com/chatmeter/chatmeter/internal/repository"
	"github.com/chatmeter/chatmeter/internal/store"
	"github.com/chatmeter/chatmeter/migrations"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand(openPostgres).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags.
type globalOptions struct {
	databaseURL string
	redisURL    string
	logLevel    string
	outputJSON  bool
}

// deps are the connections a command works with.
type deps struct {
	store   store.Store
	migrate func(ctx context.Context) ([]string, error)
	redis   *redis.Client // nil when no REDIS_URL
	logger  *slog.Logger
}

func (d *deps) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	d.store.Close()
}

// opener connects the dependencies named by opts.
type opener func(ctx context.Context, opts *globalOptions, logger *slog.Logger) (*deps, error)

// app carries state shared by subcommands during one invocation.
type app struct {
	opts   globalOptions
	open   opener
	deps   *deps
	stdout io.Writer
}

func newRootCommand(open opener) *cobra.Command {
	a := &app{open: open}

	rootCmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "chatmeter operator CLI",
		Long:          "Apply migrations, inspect and correct balances, and manage credentials.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.stdout = cmd.OutOrStdout()
			logger := logging.New(cmd.ErrOrStderr(), a.opts.logLevel, "text")
			d, err := a.open(cmd.Context(), &a.opts, logger)
			if err != nil {
				return err
			}
			a.deps = d
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.deps != nil {
				a.deps.close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.opts.databaseURL, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL (default $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&a.opts.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL for cache eviction, locks and events (default $REDIS_URL)")
	rootCmd.PersistentFlags().StringVar(&a.opts.logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().BoolVar(&a.opts.outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(newMigrateCommand(a))
	rootCmd.AddCommand(newBalanceCommand(a))
	rootCmd.AddCommand(newCredentialCommand(a))
	rootCmd.AddCommand(newEventsCommand(a))

	return rootCmd
}

// openPostgres connects the repository and, when configured, Redis.
func openPostgres(ctx context.Context, opts *globalOptions, logger *slog.Logger) (*deps, error) {
	if opts.databaseURL == "" {
		return nil, fmt.Errorf("database URL required: set --db-url or DATABASE_URL")
	}

	repo, err := repository.New(ctx, opts.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %s", logging.SanitizeError(err, opts.databaseURL))
	}

	d := &deps{
		store: repo,
		migrate: func(ctx context.Context) ([]string, error) {
			return repo.Migrate(ctx, migrations.FS)
		},
		logger: logger,
	}

	if opts.redisURL != "" {
		c, err := cache.New(ctx, opts.redisURL, cache.DefaultConfig())
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("connect redis: %s", logging.SanitizeError(err, opts.redisURL))
		}
		d.redis = c.Client()
	}

	return d, nil
}
