package commands

import (
	"fmt"
	"strings"
	"supplierbot/internal/supplier"
	"supplierbot/internal/supplier/fetch"
	"supplierbot/internal/supplier/order"
	"supplierbot/internal/tradeapi"
	"supplierbot/internal/worker"
	"supplierbot/lib/serviceutil"
	"supplierbot/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	orderUser     *string
	orderPassword *string
	orderId       *string
	orderItems    *[]string
	orderPatch    *bool
)

func init() {
	orderUser = orderCmd.Flags().String("user", "", "The supplier portal username.")
	orderPassword = orderCmd.Flags().String("password", "", "The supplier portal password.")
	orderId = orderCmd.Flags().String("id", "", "The trading API order id.")
	orderItems = orderCmd.Flags().StringArray("item", nil, "An item as <gtin>:<code>:<quantity>, may be repeated.")
	orderPatch = orderCmd.Flags().Bool("patch", false, "Run the whole job, patching the trading API order with the result.")
	orderCmd.MarkFlagRequired("user")
	orderCmd.MarkFlagRequired("password")
	orderCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(orderCmd)
}

// parseItem reads "<gtin>:<code>:<quantity>", trailing parts may be left out.
func parseItem(s string) (supplier.OrderItem, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return supplier.OrderItem{}, fmt.Errorf("item %q has more than 3 parts", s)
	}
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	item := supplier.OrderItem{
		GTIN:     strings.TrimSpace(parts[0]),
		Code:     strings.TrimSpace(parts[1]),
		Quantity: textutil.ParseQuantity(parts[2]),
	}
	if item.GTIN == "" && item.Code == "" {
		return supplier.OrderItem{}, fmt.Errorf("item %q has neither a gtin nor a code", s)
	}
	return item, nil
}

func parseItems(raw []string) []supplier.OrderItem {
	items := make([]supplier.OrderItem, 0, len(raw))
	for _, s := range raw {
		item, err := parseItem(s)
		if err != nil {
			serviceutil.Fatal("parse item", err)
		}
		items = append(items, item)
	}
	return items
}

var orderCmd = &cobra.Command{
	Use:   "order --user <user> --password <password> --id <order id> [--item <gtin>:<code>:<qty>]... [--patch]",
	Short: "Places an order on the supplier portal once, without going through the queue.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		job := worker.Job{
			Kind:            worker.KIND_ORDER,
			Credentials:     credentials(*orderUser, *orderPassword),
			ExternalOrderID: *orderId,
			Items:           parseItems(*orderItems),
		}

		if *orderPatch {
			api := tradeapi.New(tradeapi.Options{BaseURL: cfg.APIBaseURL}, tel)
			orchestrator, err := worker.NewOrchestrator(cfg, api, tel)
			if err != nil {
				serviceutil.Fatal("init orchestrator", err)
			}
			result, err := orchestrator.Handle(ctx, job)
			if err != nil {
				serviceutil.Fatal("order job", err)
			}
			printJSON(result)
			return
		}

		err := job.Validate()
		if err != nil {
			serviceutil.Fatal("validate order", err)
		}
		fetchOpts, err := cfg.Supplier.FetchOptions()
		if err != nil {
			serviceutil.Fatal("fetch options", err)
		}
		fetcher, err := fetch.New(fetchOpts, tel)
		if err != nil {
			serviceutil.Fatal("init fetcher", err)
		}
		flow := order.NewFlow(fetcher, order.Options{
			LoginURL: cfg.Supplier.LoginURL,
			OrderURL: cfg.Supplier.OrderURL,
		}, tel)
		result, err := flow.Run(ctx, order.Order{
			Credentials:     job.Credentials,
			ExternalOrderID: job.ExternalOrderID,
			Items:           job.Items,
		})
		if err != nil {
			serviceutil.Fatal("place order", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Order", "Confirmation code", "Status", "Simulated"})
		t.AppendRow(table.Row{job.ExternalOrderID, result.ConfirmationCode(), result.Status(), result.Simulated()})
		t.Render()
	},
}
