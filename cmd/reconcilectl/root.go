package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammadpnp/account-reconcile/internal/bootstrap"
	"github.com/mohammadpnp/account-reconcile/internal/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reconcilectl",
		Short:         "Preview and apply CSV account reconciliations against directory targets",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newMigrateCmd(), newPreviewCmd(), newApplyCmd(), newRecoverCmd(), newReportCmd(), newExportUsersCmd())
	return cmd
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *bootstrap.App) error) error {
	cfg, err := config.Load(config.DefaultEnvFiles...)
	if err != nil {
		return err
	}
	a, err := bootstrap.NewApp(ctx, cfg, cfg.Logger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
