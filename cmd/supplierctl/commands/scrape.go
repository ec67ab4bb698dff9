package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"supplierbot/internal/supplier"
	"supplierbot/internal/supplier/fetch"
	"supplierbot/internal/supplier/listing"
	"supplierbot/internal/supplier/session"
	"supplierbot/internal/tradeapi"
	"supplierbot/internal/worker"
	"supplierbot/lib/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	scrapeUser     *string
	scrapePassword *string
	scrapeOut      *string
	scrapeSubmit   *bool
)

func init() {
	scrapeUser = scrapeCmd.Flags().String("user", "", "The supplier portal username.")
	scrapePassword = scrapeCmd.Flags().String("password", "", "The supplier portal password.")
	scrapeOut = scrapeCmd.Flags().String("out", "", "Write the scraped products to this json file.")
	scrapeSubmit = scrapeCmd.Flags().Bool("submit", false, "Run the whole job, submitting the products to the trading API.")
	scrapeCmd.MarkFlagRequired("user")
	scrapeCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(scrapeCmd)
}

func credentials(user, password string) supplier.Credentials {
	return supplier.Credentials{Username: user, Password: password}
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape --user <user> --password <password> [--out <products.json>] [--submit]",
	Short: "Scrapes the supplier product listing once, without going through the queue.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		creds := credentials(*scrapeUser, *scrapePassword)

		if *scrapeSubmit {
			api := tradeapi.New(tradeapi.Options{BaseURL: cfg.APIBaseURL}, tel)
			orchestrator, err := worker.NewOrchestrator(cfg, api, tel)
			if err != nil {
				serviceutil.Fatal("init orchestrator", err)
			}
			result, err := orchestrator.Handle(ctx, worker.Job{Kind: worker.KIND_SCRAPE, Credentials: creds})
			if err != nil {
				serviceutil.Fatal("scrape job", err)
			}
			printJSON(result)
			return
		}

		fetchOpts, err := cfg.Supplier.FetchOptions()
		if err != nil {
			serviceutil.Fatal("fetch options", err)
		}
		fetcher, err := fetch.New(fetchOpts, tel)
		if err != nil {
			serviceutil.Fatal("init fetcher", err)
		}
		scraper := session.NewScraper(fetcher, session.Options{
			LoginURL:    cfg.Supplier.LoginURL,
			ProductsURL: cfg.Supplier.ProductsURL,
			Listing:     listing.Options{MaxPages: cfg.Supplier.MaxPages},
		}, tel)

		start := time.Now()
		products, err := scraper.Scrape(ctx, creds)
		if err != nil {
			serviceutil.Fatal("scrape", err)
		}
		slog.Info("scraped", "products", len(products), "seconds", time.Since(start).Seconds())

		if *scrapeOut != "" {
			encoded, err := json.MarshalIndent(products, "", "  ")
			if err != nil {
				serviceutil.Fatal("encode products", err)
			}
			err = os.WriteFile(*scrapeOut, encoded, 0644)
			if err != nil {
				serviceutil.Fatal("write products", err)
			}
		}

		t := newTable()
		t.AppendHeader(table.Row{"GTIN", "Code", "Description", "Factory price", "Stock"})
		for _, p := range products {
			t.AppendRow(table.Row{p.GTIN, p.Code, p.Description, fmt.Sprintf("%.2f", p.FactoryPrice), p.Stock})
		}
		t.AppendFooter(table.Row{"", "", "Total", len(products), ""})
		t.Render()
	},
}

func printJSON(v any) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		serviceutil.Fatal("encode result", err)
	}
	fmt.Println(string(encoded))
}
