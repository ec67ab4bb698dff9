package commands

import (
	"context"
	"log/slog"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/tradeapi"
	"supplierbot/internal/worker"
	"supplierbot/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(workerCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes scrape and order jobs until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		t, err := telemetry.Setup(ctx, "supplierbot-worker", cfg.Telemetry)
		if err != nil {
			serviceutil.Fatal("setup telemetry", err)
		}
		defer t.Shutdown(context.Background())
		err = telemetry.InstrumentPerfStats(ctx)
		if err != nil {
			serviceutil.Fatal("instrument perf stats", err)
		}

		db, q := openQueue(cfg)
		defer db.Close()

		api := tradeapi.New(tradeapi.Options{BaseURL: cfg.APIBaseURL}, tel)
		orchestrator, err := worker.NewOrchestrator(cfg, api, tel)
		if err != nil {
			serviceutil.Fatal("init orchestrator", err)
		}

		slog.Info(
			"consuming jobs",
			"queues", cfg.QueueNames,
			"workers", cfg.Workers,
			"supplier", cfg.Supplier.BaseURL,
			"api", cfg.APIBaseURL,
		)
		err = worker.NewPool(q, orchestrator, cfg.PoolOptions(), tel).Run(ctx)
		if err != nil {
			serviceutil.Fatal("run worker pool", err)
		}
		slog.Info("worker stopped")
	},
}
