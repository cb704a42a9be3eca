package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/feedmirror/internal/config"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.BackendFile, cfg.Backend)
	assert.Equal(t, libfeed.DefaultEndpoint, cfg.Feed.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, 10, cfg.Crawler.BatchSize)
	assert.Equal(t, 4, cfg.Crawler.Workers)
	assert.Equal(t, 5*time.Second, cfg.Crawler.ItemTimeout)
	assert.Equal(t, 5, cfg.Crawler.RunManyLimit)
	assert.Equal(t, int64(0), cfg.Crawler.StartID)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.Minute, cfg.Server.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedmirror.yml")
	err := os.WriteFile(path, []byte(`
backend: sqlite
uri: items.db
feed:
  endpoint: http://file.lan/v0/
crawler:
  batch_size: 50
  workers: 8
  item_timeout: 2s
`), 0600)
	require.NoError(t, err)

	t.Setenv("CRAWLER_HUB", "http://legacy.lan/v0/")
	t.Setenv("MAX_BATCH_ITEMS", "25")
	t.Setenv("FEEDMIRROR_CRAWLER_WORKERS", "2")
	t.Setenv("FEEDMIRROR_CRAWLER_START_ID", "34103931")
	t.Setenv("FEEDMIRROR_UNKNOWN_KEY", "ignored")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.BackendSQLite, cfg.Backend)
	assert.Equal(t, "items.db", cfg.URI)
	assert.Equal(t, "http://legacy.lan/v0/", cfg.Feed.Endpoint)
	assert.Equal(t, 25, cfg.Crawler.BatchSize)
	assert.Equal(t, 2, cfg.Crawler.Workers)
	assert.Equal(t, 2*time.Second, cfg.Crawler.ItemTimeout)
	assert.Equal(t, int64(34103931), cfg.Crawler.StartID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nowhere.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	c := cfg
	c.Backend = "mysql"
	err = c.Validate()
	assert.Equal(t, fmerror.KindConfig, fmerror.KindOf(err))
	assert.Contains(t, err.Error(), `"mysql"`)

	c = cfg
	c.Crawler.BatchSize = 0
	assert.Error(t, c.Validate())

	c = cfg
	c.Crawler.Workers = -1
	assert.Error(t, c.Validate())

	c = cfg
	c.URI = ""
	assert.Error(t, c.Validate())
}
