package commands

import (
	"log/slog"
	"supplierbot/internal/tradeapi"
	"supplierbot/internal/tradeapi/tradeapitest"
	"supplierbot/lib/serviceutil"

	"github.com/spf13/cobra"
)

var mockApiAddr *string

func init() {
	mockApiAddr = mockApiCmd.Flags().String("addr", "127.0.0.1:8000", "The address to listen on.")

	apiCmd.AddCommand(signupCmd)
	apiCmd.AddCommand(healthcheckCmd)
	apiCmd.AddCommand(mockApiCmd)
	rootCmd.AddCommand(apiCmd)
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Talks to the trading API, or serves a local stand-in for it.",
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Registers the configured API user with the trading API.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		api := tradeapi.New(tradeapi.Options{BaseURL: cfg.APIBaseURL}, tel)
		res, err := api.Signup(cmd.Context(), cfg.APIUser, cfg.APIPassword)
		if err != nil {
			serviceutil.Fatal("signup", err)
		}
		printJSON(res)
	},
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Checks that the trading API is up.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		api := tradeapi.New(tradeapi.Options{BaseURL: cfg.APIBaseURL}, tel)
		err := api.Healthcheck(cmd.Context())
		if err != nil {
			serviceutil.Fatal("healthcheck", err)
		}
		slog.Info("trading api is healthy", "url", api.BaseURL())
	},
}

var mockApiCmd = &cobra.Command{
	Use:   "mock [--addr <host:port>]",
	Short: "Serves an in-memory trading API, with the configured API user already signed up.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		server := tradeapitest.New()
		if cfg.APIUser != "" && cfg.APIPassword != "" {
			server.AddUser(cfg.APIUser, cfg.APIPassword)
		}
		err := serviceutil.ServeHttp(cmd.Context(), *mockApiAddr, server.Handler())
		if err != nil {
			serviceutil.Fatal("serve mock api", err)
		}
	},
}
