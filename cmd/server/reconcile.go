package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/neftie/neftie/backend/internal/config"
)

type reconcileConfig struct {
	timeout time.Duration
}

// newReconcileCmd creates the reconcile subcommand, a one-off run of the
// post reference sweep.
func newReconcileCmd() *cobra.Command {
	cfg := &reconcileConfig{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair user post lists left inconsistent by interrupted writes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 5*time.Minute, "abort the sweep after this long")

	return cmd
}

func runReconcile(cmd *cobra.Command, rc *reconcileConfig) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), rc.timeout)
	defer cancel()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := newServices(cfg, b, log).posts.Reconcile(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("pulled %d dangling refs, restored %d missing refs\n", res.Pulled, res.Restored)
	return nil
}
