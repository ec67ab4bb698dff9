package commands

import (
	"database/sql"
	"log/slog"
	"supplierbot/internal/queue"
	"supplierbot/internal/tradeapi"
	"supplierbot/internal/worker"
	"supplierbot/lib/serviceutil"

	"github.com/spf13/cobra"
)

var (
	enqueueUser     *string
	enqueuePassword *string
	enqueueOrderId  *string
	enqueueItems    *[]string
)

func init() {
	enqueueUser = enqueueCmd.PersistentFlags().String("user", "", "The supplier portal username.")
	enqueuePassword = enqueueCmd.PersistentFlags().String("password", "", "The supplier portal password.")
	enqueueCmd.MarkPersistentFlagRequired("user")
	enqueueCmd.MarkPersistentFlagRequired("password")

	enqueueOrderId = enqueueOrderCmd.Flags().String("id", "", "The trading API order id, a new order is created through the API when empty.")
	enqueueItems = enqueueOrderCmd.Flags().StringArray("item", nil, "An item as <gtin>:<code>:<quantity>, may be repeated.")

	enqueueCmd.AddCommand(enqueueScrapeCmd)
	enqueueCmd.AddCommand(enqueueOrderCmd)
	rootCmd.AddCommand(enqueueCmd)
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queues jobs for the worker.",
}

func openQueue(cfg worker.Config) (*sql.DB, queue.Queue) {
	dsn, err := cfg.QueueSource()
	if err != nil {
		serviceutil.Fatal("queue dsn", err)
	}
	db, err := queue.Open(dsn)
	if err != nil {
		serviceutil.Fatal("open queue", err)
	}
	return db, queue.New(db, cfg.QueueOptions(), tel)
}

func enqueue(cmd *cobra.Command, cfg worker.Config, queueName string, job worker.Job) {
	err := job.Validate()
	if err != nil {
		serviceutil.Fatal("validate job", err)
	}
	payload, err := worker.EncodeJob(job)
	if err != nil {
		serviceutil.Fatal("encode job", err)
	}

	db, q := openQueue(cfg)
	defer db.Close()
	id, err := q.Enqueue(cmd.Context(), queueName, payload)
	if err != nil {
		serviceutil.Fatal("enqueue job", err)
	}
	slog.Info("queued job", "id", id, "queue", queueName, "kind", job.Kind)
}

var enqueueScrapeCmd = &cobra.Command{
	Use:   "scrape --user <user> --password <password>",
	Short: "Queues a product scrape.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		enqueue(cmd, cfg, cfg.ScrapeQueue, worker.Job{
			Kind:        worker.KIND_SCRAPE,
			Credentials: credentials(*enqueueUser, *enqueuePassword),
		})
	},
}

var enqueueOrderCmd = &cobra.Command{
	Use:   "order --user <user> --password <password> [--id <order id>] [--item <gtin>:<code>:<qty>]...",
	Short: "Queues an order, creating it through the trading API when no id is given.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		job := worker.Job{
			Kind:            worker.KIND_ORDER,
			Credentials:     credentials(*enqueueUser, *enqueuePassword),
			ExternalOrderID: *enqueueOrderId,
			Items:           parseItems(*enqueueItems),
		}

		if job.ExternalOrderID == "" {
			api := tradeapi.New(tradeapi.Options{BaseURL: cfg.APIBaseURL}, tel)
			token, err := api.Authenticate(ctx, cfg.APIUser, cfg.APIPassword)
			if err != nil {
				serviceutil.Fatal("authenticate with trading api", err)
			}
			created, _, err := api.CreateOrder(ctx, token)
			if err != nil {
				serviceutil.Fatal("create order", err)
			}
			job.ExternalOrderID = created.ID.String()
			if len(job.Items) == 0 {
				job.Items = created.Items
			}
			slog.Info("created order", "id", job.ExternalOrderID, "items", len(job.Items))
		}

		enqueue(cmd, cfg, cfg.OrderQueue, job)
	},
}
