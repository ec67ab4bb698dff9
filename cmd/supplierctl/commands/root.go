package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/worker"
	"supplierbot/lib/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
)

var tel telemetry.API

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file, a <name>.local.json5 next to it overrides it.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

var rootCmd = &cobra.Command{
	Use:   "supplierctl",
	Short: "supplierctl scrapes a supplier portal, places orders on it and relays results to the trading API.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initSlog(*verbose)
		metered, err := telemetry.NewMeteredAPI(telemetry.SlogAPI{})
		if err != nil {
			serviceutil.Fatal("init telemetry", err)
		}
		tel = metered
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

func loadConfig() worker.Config {
	cfg, err := worker.LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	return cfg
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
