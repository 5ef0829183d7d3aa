package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/server"
)

// newRootCmd builds the folio command tree.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "folio",
		Short: "Portfolio valuation and time-series engine",
		Long: `folio keeps a trade ledger per user, values it at market and serves
the portfolio chart series over HTTP.

Use 'folio serve' to start the API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: $FOLIO_CONFIG, then folio.toml next to the binary)")

	rootCmd.AddCommand(
		newServeCmd(),
		newResyncCmd(),
		newReplayCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	return app.NewApp(configPath)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}

			common.PrintBanner(os.Stdout, a.Config, a.Logger)

			if err := a.StartScheduler(); err != nil {
				a.Close()
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := server.NewServer(a).Run(ctx)

			common.PrintShutdownBanner(os.Stdout, a.Logger)
			a.Close()
			a.Logger.Info().Msg("Server stopped")
			return runErr
		},
	}
}

func newResyncCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rebuild stored positions from the trade history",
		Long: `Recomputes every position by replaying trades in order and replaces the
stored rows. Without --user every user with a wallet is resynced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			users := []string{user}
			if user == "" {
				users, err = a.Storage.LedgerStore().ListUserIDs(ctx)
				if err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}
			}

			for _, id := range users {
				positions, err := a.LedgerService.ResyncPositions(ctx, id)
				if err != nil {
					return fmt.Errorf("resync %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d positions\n", id, len(positions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID to resync (default: all users)")
	return cmd
}

func newReplayCmd() *cobra.Command {
	var (
		user      string
		rangeKey  string
		gran      string
		chartPath string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print the chart series for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if chartPath != "" {
				png, err := a.TimeseriesService.RenderChart(ctx, user, rangeKey)
				if err != nil {
					return err
				}
				if err := os.WriteFile(chartPath, png, 0644); err != nil {
					return fmt.Errorf("failed to write chart: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "chart written to %s\n", chartPath)
				return nil
			}

			resp, err := a.TimeseriesService.GetTimeseries(ctx, user, rangeKey, gran)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&user, "user", common.DefaultUserID, "user ID")
	cmd.Flags().StringVar(&rangeKey, "range", "1D", "chart range (1H, 1D, 3D, 1W, 1M, 3M, 6M, 1Y, ALL)")
	cmd.Flags().StringVar(&gran, "gran", "", "granularity hint, echoed in the output")
	cmd.Flags().StringVar(&chartPath, "chart", "", "write a PNG chart to this path instead of printing JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			common.LoadVersionFromFile()
			fmt.Fprintln(cmd.OutOrStdout(), common.GetFullVersion())
		},
	}
}
