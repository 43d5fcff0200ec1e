package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cimillas/flashsale/internal/app"
	"github.com/cimillas/flashsale/migrations"
)

func newMigrateCommand(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(cmd.Context(), state.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(cmd.Context(), pool)
			if err != nil {
				return err
			}
			state.logger.Info("migrations applied", zap.Strings("names", applied))
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
			return nil
		},
	}
}

func newSeedCommand(state *cli) *cobra.Command {
	var (
		name  string
		price string
		stock int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a product to run a sale against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPrice, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("parse price %q: %w", price, err)
			}
			return withRuntime(cmd.Context(), state, func(rt *runtime) error {
				product, err := rt.catalog.SeedProduct(cmd.Context(), app.SeedProductInput{
					Name:       name,
					UnitPrice:  unitPrice,
					TotalStock: stock,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "product %d: %s, %s, %d units\n",
					product.ID, product.Name, product.UnitPrice.StringFixed(2), product.TotalStock)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "Flash Sale Product - Limited Edition", "product name")
	cmd.Flags().StringVar(&price, "price", "49.99", "unit price")
	cmd.Flags().IntVar(&stock, "stock", 100, "total stock")
	return cmd
}

func newSweepCommand(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release expired holds once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), state, func(rt *runtime) error {
				released, err := rt.reaper.Sweep(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "released %d hold(s)\n", released)
				return err
			})
		},
	}
}

func newReconcileCommand(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Apply queued payment notifications whose order now exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), state, func(rt *runtime) error {
				res, err := rt.settlement.Reconcile(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d, rejected %d, remaining %d\n",
					res.Processed, res.Rejected, res.Remaining)
				return err
			})
		},
	}
}

func newPruneCommand(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete settlement history older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), state, func(rt *runtime) error {
				res, err := rt.settlement.Prune(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d idempotency record(s), %d pending webhook(s)\n",
					res.IdempotencyRecords, res.PendingWebhooks)
				return err
			})
		},
	}
}

func withRuntime(ctx context.Context, state *cli, fn func(rt *runtime) error) error {
	rt, err := newRuntime(ctx, state.cfg, state.logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
