// Command queue runs queue and maintenance jobs from cron or a shell.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/sitesafe/internal/application"
	appauth "github.com/bryanwahyu/sitesafe/internal/application/auth"
	"github.com/bryanwahyu/sitesafe/internal/bootstrap"
	"github.com/bryanwahyu/sitesafe/internal/config"
	"github.com/bryanwahyu/sitesafe/internal/infra/db"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug(".env not found, using environment")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "queue",
		Short:        "SiteSafe queue and maintenance jobs",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "path to config.yaml")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		bootstrap.SetLogLevel(cfg.Log.Level)
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Process the oldest PENDING upload, if any",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Queue.ProcessNext(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			gdb, err := bootstrap.OpenDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)
			log.Infof("schema up to date (%s)", cfg.Database.Driver)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete expired sign-in sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			gdb, err := bootstrap.OpenDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			svc := &appauth.Service{Sessions: db.NewSessionRepository(gdb), Clock: application.SystemClock{}}
			n, err := svc.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			log.Infof("purged %d expired sessions", n)
			return nil
		},
	})

	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
