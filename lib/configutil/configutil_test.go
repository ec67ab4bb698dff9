package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string   `json:"name"`
	Workers int      `json:"workers"`
	Queues  []string `json:"queues"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// comments are allowed
		name: "base",
		workers: 2,
		queues: ["scraping"],
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{workers: 4}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, []string{"scraping"}, cfg.Queues)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)

	cfg, err := ReadConfigOptional[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{}, cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TEST_PRIMARY", "")
	t.Setenv("TEST_FALLBACK", "from-env")
	t.Setenv("TEST_LIST", " scraping, ,pedido ")

	value := "default"
	StringFromEnv(&value, "TEST_PRIMARY", "TEST_FALLBACK")
	require.Equal(t, "from-env", value)

	list := []string{"default"}
	ListFromEnv(&list, "TEST_LIST")
	require.Equal(t, []string{"scraping", "pedido"}, list)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SUPPLIERBOT_DOTENV_TEST=loaded\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("SUPPLIERBOT_DOTENV_TEST") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	require.Equal(t, "loaded", os.Getenv("SUPPLIERBOT_DOTENV_TEST"))
}
