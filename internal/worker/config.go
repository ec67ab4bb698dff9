package worker

import (
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/queue"
	"supplierbot/internal/supplier/fetch"
	"supplierbot/internal/tradeapi"
	"supplierbot/lib/configutil"
	"supplierbot/lib/restyutil"
	"time"
)

const DefaultSupplierBaseURL = "https://pedidoeletronico.servimed.com.br"

type SupplierConfig struct {
	BaseURL string `json:"base_url"`
	// LoginURL, ProductsURL and OrderURL may be relative to BaseURL, they
	// default to BaseURL itself.
	LoginURL    string `json:"login_url"`
	ProductsURL string `json:"products_url"`
	// OrderURL is fetched after logging in to find the order form, when empty
	// the page the login led to is used.
	OrderURL              string  `json:"order_url"`
	MaxPages              int     `json:"max_pages"`
	RateLimit             float64 `json:"rate_limit"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds"`
	AllowOtherHosts       bool    `json:"allow_other_hosts"`
	BypassCloudflare      bool    `json:"bypass_cloudflare"`
	// DumpDir receives a dump of every http exchange with the portal when
	// set.
	DumpDir string `json:"dump_dir"`
}

// FetchOptions turns the supplier configuration into fetcher options.
func (c SupplierConfig) FetchOptions() (fetch.Options, error) {
	opts := fetch.Options{
		BaseURL:          c.BaseURL,
		Timeout:          time.Duration(c.RequestTimeoutSeconds) * time.Second,
		RateLimit:        c.RateLimit,
		AllowOtherHosts:  c.AllowOtherHosts,
		BypassCloudflare: c.BypassCloudflare,
	}
	if c.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(c.DumpDir)
		if err != nil {
			return fetch.Options{}, err
		}
		opts.Output = output
	}
	return opts, nil
}

// Config only decides where jobs come from and where results go, it never
// changes how pages are read.
type Config struct {
	QueueNames  []string `json:"queue_names"`
	ScrapeQueue string   `json:"scrape_queue"`
	OrderQueue  string   `json:"order_queue"`
	// QueueDSN is a sqlite path or a libsql url, see queue.Open.
	QueueDSN       string `json:"queue_dsn"`
	QueueAuthToken string `json:"queue_auth_token"`

	APIBaseURL  string `json:"api_base_url"`
	APIUser     string `json:"api_user"`
	APIPassword string `json:"api_password"`

	Supplier SupplierConfig `json:"supplier"`

	Workers            int `json:"workers"`
	JobTimeoutSeconds  int `json:"job_timeout_seconds"`
	LeaseSeconds       int `json:"lease_seconds"`
	PollIntervalMillis int `json:"poll_interval_millis"`
	MaxAttempts        int `json:"max_attempts"`

	Telemetry telemetry.Config `json:"telemetry"`
}

// FromEnv overrides the configuration with the environment variables the
// worker has always been deployed with.
func (c *Config) FromEnv() {
	configutil.ListFromEnv(&c.QueueNames, "QUEUE_NAMES", "RQ_QUEUES")
	configutil.StringFromEnv(&c.ScrapeQueue, "SCRAPE_QUEUE", "RQ_QUEUE_NAME")
	configutil.StringFromEnv(&c.OrderQueue, "ORDER_QUEUE", "RQ_QUEUE_PEDIDO_NAME")
	configutil.StringFromEnv(&c.QueueDSN, "QUEUE_DSN", "REDIS_URL")
	configutil.StringFromEnv(&c.QueueAuthToken, "QUEUE_AUTH_TOKEN", "LIBSQL_AUTH_TOKEN")
	configutil.StringFromEnv(&c.APIBaseURL, "DESAFIO_API_URL")
	configutil.StringFromEnv(&c.APIUser, "DESAFIO_API_USER")
	configutil.StringFromEnv(&c.APIPassword, "DESAFIO_API_PASSWORD")
	configutil.StringFromEnv(&c.Supplier.BaseURL, "SUPPLIER_BASE_URL")
	configutil.StringFromEnv(&c.Supplier.LoginURL, "SUPPLIER_LOGIN_URL")
	configutil.StringFromEnv(&c.Supplier.ProductsURL, "SUPPLIER_PRODUCTS_URL")
	configutil.StringFromEnv(&c.Supplier.OrderURL, "SUPPLIER_ORDER_URL")
}

func (c *Config) SetDefaults() {
	if c.ScrapeQueue == "" {
		c.ScrapeQueue = "scraping"
	}
	if c.OrderQueue == "" {
		c.OrderQueue = "pedido"
	}
	if len(c.QueueNames) == 0 {
		c.QueueNames = []string{c.ScrapeQueue, c.OrderQueue}
	}
	if c.QueueDSN == "" {
		c.QueueDSN = "queue.db"
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = tradeapi.DefaultBaseURL
	}
	if c.Supplier.BaseURL == "" {
		c.Supplier.BaseURL = DefaultSupplierBaseURL
	}
	if c.Supplier.MaxPages <= 0 {
		c.Supplier.MaxPages = 200
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.JobTimeoutSeconds <= 0 {
		c.JobTimeoutSeconds = 600
	}
	if c.LeaseSeconds <= 0 {
		c.LeaseSeconds = c.JobTimeoutSeconds + 60
	}
	if c.PollIntervalMillis <= 0 {
		c.PollIntervalMillis = 1000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// QueueSource is the DSN to pass to queue.Open.
func (c Config) QueueSource() (string, error) {
	return queue.WithAuthToken(c.QueueDSN, c.QueueAuthToken)
}

func (c Config) QueueOptions() queue.Options {
	return queue.Options{
		Lease:       time.Duration(c.LeaseSeconds) * time.Second,
		MaxAttempts: c.MaxAttempts,
	}
}

func (c Config) PoolOptions() PoolOptions {
	return PoolOptions{
		Workers:      c.Workers,
		Queues:       c.QueueNames,
		ScrapeQueue:  c.ScrapeQueue,
		OrderQueue:   c.OrderQueue,
		JobTimeout:   c.JobTimeout(),
		PollInterval: time.Duration(c.PollIntervalMillis) * time.Millisecond,
	}
}

// LoadConfig reads path (and its .local override) if it exists, loads .env
// into the environment, then applies environment overrides and defaults.
func LoadConfig(path string) (Config, error) {
	err := configutil.LoadDotEnv(".env")
	if err != nil {
		return Config{}, err
	}
	cfg, err := configutil.ReadConfigOptional[Config](path)
	if err != nil {
		return Config{}, err
	}
	cfg.FromEnv()
	cfg.SetDefaults()
	return cfg, nil
}
