package worker

import (
	"os"
	"path/filepath"
	"supplierbot/internal/tradeapi"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json5"))
	require.NoError(t, err)

	require.Equal(t, []string{"scraping", "pedido"}, cfg.QueueNames)
	require.Equal(t, "queue.db", cfg.QueueDSN)
	require.Equal(t, tradeapi.DefaultBaseURL, cfg.APIBaseURL)
	require.Equal(t, DefaultSupplierBaseURL, cfg.Supplier.BaseURL)
	require.Equal(t, 200, cfg.Supplier.MaxPages)
	require.Equal(t, 10*time.Minute, cfg.JobTimeout())
	require.Equal(t, 11*time.Minute, cfg.QueueOptions().Lease)
	require.Equal(t, time.Second, cfg.PoolOptions().PollInterval)
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// shared settings
		queue_dsn: "file.db",
		api_user: "from-file",
		workers: 4,
		supplier: { products_url: "/catalogo", max_pages: 10 },
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.local.json5"), []byte(`{
		workers: 2,
		supplier: { max_pages: 5 },
	}`), 0644))

	t.Setenv("REDIS_URL", "libsql://queue.example")
	t.Setenv("DESAFIO_API_USER", "from-env")
	t.Setenv("RQ_QUEUES", "scraping, pedido ,extra")
	t.Setenv("SUPPLIER_LOGIN_URL", "/entrar")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "libsql://queue.example", cfg.QueueDSN)
	require.Equal(t, "from-env", cfg.APIUser)
	require.Equal(t, []string{"scraping", "pedido", "extra"}, cfg.QueueNames)
	require.Equal(t, 2, cfg.Workers)
	require.Equal(t, "/catalogo", cfg.Supplier.ProductsURL)
	require.Equal(t, "/entrar", cfg.Supplier.LoginURL)
	require.Equal(t, 5, cfg.Supplier.MaxPages)
}

func TestLoadConfigPreferredEnvNames(t *testing.T) {
	t.Setenv("QUEUE_DSN", "preferred.db")
	t.Setenv("REDIS_URL", "fallback.db")
	t.Setenv("ORDER_QUEUE", "orders")
	t.Setenv("RQ_QUEUE_PEDIDO_NAME", "pedido-legacy")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json5"))
	require.NoError(t, err)
	require.Equal(t, "preferred.db", cfg.QueueDSN)
	require.Equal(t, "orders", cfg.OrderQueue)
	require.Equal(t, []string{"scraping", "orders"}, cfg.QueueNames)
}

func TestSupplierFetchOptions(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "dump")
	opts, err := SupplierConfig{
		BaseURL:               "https://portal.example",
		RequestTimeoutSeconds: 5,
		RateLimit:             2,
		DumpDir:               dump,
	}.FetchOptions()
	require.NoError(t, err)
	require.Equal(t, "https://portal.example", opts.BaseURL)
	require.Equal(t, 5*time.Second, opts.Timeout)
	require.NotNil(t, opts.Output)
	require.DirExists(t, dump)
}
