package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/eddiefleurent/pmcc_scanner/internal/retry"
	"github.com/eddiefleurent/pmcc_scanner/internal/server"
	"github.com/spf13/cobra"
)

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan SYMBOL [SYMBOL...]",
		Short: "Scan symbols live against the market data provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.criteria(ctx)
			if err != nil {
				return fmt.Errorf("load filter criteria: %w", err)
			}

			result, err := a.scanner().Scan(ctx, args, c)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "Scan %s: %s over %d symbols in %s\n",
				result.ID, result.Strategy, result.SymbolsProcessed, result.Duration.Round(time.Millisecond))
			printOpportunities(out, result.Opportunities)
			printSymbolErrors(out, result.Errors)
			return nil
		},
	}
}

func newScreenCommand() *cobra.Command {
	var price float64

	cmd := &cobra.Command{
		Use:   "screen SYMBOL",
		Short: "Screen a symbol's stored option chain",
		Long: `Screen evaluates the contracts previously saved with 'scanner snapshot'.
Without --price the underlying price is fetched from the provider.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.criteria(ctx)
			if err != nil {
				return fmt.Errorf("load filter criteria: %w", err)
			}

			if price <= 0 {
				price, err = retry.NewClient(a.provider, a.logger).GetLastPriceWithRetry(ctx, args[0])
				if err != nil {
					return fmt.Errorf("fetch price: %w", err)
				}
			}

			result, err := a.screener().Screen(ctx, args[0], price, c)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "Screen %s: %s at %s, %d stored contracts\n",
				result.Symbol, result.Strategy, formatMoney(result.Price), result.Stats.TotalContracts)
			printOpportunities(out, result.Opportunities)
			printRejections(out, &result.Stats)
			return nil
		},
	}

	cmd.Flags().Float64Var(&price, "price", 0, "Underlying price (default: fetched from the provider)")
	return cmd
}

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot SYMBOL [SYMBOL...]",
		Short: "Fetch option chains and save them to the option store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			client := retry.NewClient(a.provider, a.logger)
			var failed int
			for _, symbol := range args {
				n, err := snapshot(ctx, a, client, symbol)
				if err != nil {
					failed++
					a.logger.WithError(err).WithField("symbol", symbol).Warn("Snapshot failed")
					continue
				}
				fmt.Fprintf(out, "%-8s %s contracts saved\n", symbol, formatCount(n))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d snapshots failed", failed, len(args))
			}
			return nil
		},
	}
}

func snapshot(ctx context.Context, a *app, client *retry.Client, symbol string) (int, error) {
	chain, err := client.GetOptionChainWithRetry(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if err := a.store.SaveOptions(ctx, symbol, chain); err != nil {
		return 0, fmt.Errorf("save options: %w", err)
	}
	return len(chain), nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.NewServer(
				server.Config{Addr: a.cfg.Server.Addr, AuthToken: a.cfg.Server.AuthToken},
				a.scanner(), a.screener(), a.store, a.registry, a.logger,
			)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				a.logger.Info("Shutdown signal received, stopping server...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newFiltersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Manage saved filter criteria",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			filters, err := a.store.List(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), filters)
			}
			printFilters(cmd.OutOrStdout(), filters, time.Now())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activate ID",
		Short: "Make a filter the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid filter id %q", args[0])
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Activate(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filter %d is now active\n", id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add FILE",
		Short: "Save a filter from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0]) // #nosec G304 -- user-provided filter file
			if err != nil {
				return err
			}
			var c models.FilterCriteria
			if err := json.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Save(ctx, &c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved filter %d (%s)\n", c.ID, c.Name)
			return nil
		},
	})

	return cmd
}
