package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of the environment variables overriding the configuration.
// e.g. FEEDMIRROR_CRAWLER_BATCH_SIZE=50
const EnvPrefix = "FEEDMIRROR_"

// Supported backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Backends lists the supported storage backends.
var Backends = []string{BackendFile, BackendSQLite, BackendPostgres}

type (
	// A Config holds the whole configuration, it is loaded once at startup.
	Config struct {
		Backend string
		URI     string
		Feed    Feed
		Crawler Crawler
		Log     Log
		Server  Server
	}

	// A Feed holds the feed client settings.
	Feed struct {
		Endpoint          string
		Timeout           time.Duration
		RequestsPerSecond float64
		UserAgent         string
	}

	// A Crawler holds the sync engine settings.
	Crawler struct {
		BatchSize    int
		Workers      int
		ItemTimeout  time.Duration
		RunManyLimit int
		StartID      int64
	}

	// A Log holds the logger settings.
	Log struct {
		Level      string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	// A Server holds the daemon settings.
	Server struct {
		Listen   string
		Interval time.Duration
		Debounce time.Duration
	}
)

// legacy maps the historical environment variables to configuration keys.
var legacy = map[string]string{
	"CRAWLER_HUB":     "feed.endpoint",
	"MAX_BATCH_ITEMS": "crawler.batch_size",
}

func defaults() map[string]any {
	return map[string]any{
		"backend":                  BackendFile,
		"uri":                      "feedmirror.db",
		"feed.endpoint":            libfeed.DefaultEndpoint,
		"feed.timeout":             "30s",
		"feed.requests_per_second": 0.0,
		"feed.user_agent":          "feedmirror",
		"crawler.batch_size":       10,
		"crawler.workers":          4,
		"crawler.item_timeout":     "5s",
		"crawler.run_many_limit":   5,
		"crawler.start_id":         0,
		"log.level":                "info",
		"log.file":                 "",
		"log.max_size_mb":          20,
		"log.max_backups":          2,
		"log.max_age_days":         10,
		"server.listen":            "localhost:5000",
		"server.interval":          "1m",
		"server.debounce":          "2s",
	}
}

// Load reads the configuration.
// Precedence from lowest to highest: built-in defaults, YAML file (if path is not empty),
// legacy environment variables (CRAWLER_HUB, MAX_BATCH_ITEMS) and FEEDMIRROR_* variables.
func Load(path string) (Config, error) {
	konf := koanf.New(".")

	if err := konf.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, errors.Wrap(err, "could not load defaults")
	}

	if path != "" {
		if err := konf.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "could not load %s", path)
		}
	}

	err := konf.Load(env.Provider("", ".", func(s string) string {
		return legacy[s]
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not load legacy environment")
	}

	known := defaults()
	err = konf.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := envKey(s)
		if _, ok := known[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not load environment")
	}

	return Config{
		Backend: konf.String("backend"),
		URI:     konf.String("uri"),
		Feed: Feed{
			Endpoint:          konf.String("feed.endpoint"),
			Timeout:           konf.Duration("feed.timeout"),
			RequestsPerSecond: konf.Float64("feed.requests_per_second"),
			UserAgent:         konf.String("feed.user_agent"),
		},
		Crawler: Crawler{
			BatchSize:    konf.Int("crawler.batch_size"),
			Workers:      konf.Int("crawler.workers"),
			ItemTimeout:  konf.Duration("crawler.item_timeout"),
			RunManyLimit: konf.Int("crawler.run_many_limit"),
			StartID:      konf.Int64("crawler.start_id"),
		},
		Log: Log{
			Level:      konf.String("log.level"),
			File:       konf.String("log.file"),
			MaxSizeMB:  konf.Int("log.max_size_mb"),
			MaxBackups: konf.Int("log.max_backups"),
			MaxAgeDays: konf.Int("log.max_age_days"),
		},
		Server: Server{
			Listen:   konf.String("server.listen"),
			Interval: konf.Duration("server.interval"),
			Debounce: konf.Duration("server.debounce"),
		},
	}, nil
}

// envKey converts FEEDMIRROR_CRAWLER_BATCH_SIZE into crawler.batch_size.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if section, key, ok := strings.Cut(s, "_"); ok {
		switch section {
		case "feed", "crawler", "log", "server":
			return section + "." + key
		}
	}
	return s
}

// Validate checks the configuration consistency.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite, BackendPostgres:
	default:
		return fmerror.Config("unknown backend %q", c.Backend)
	}

	if c.URI == "" {
		return fmerror.Config("backend %q requires a connection string", c.Backend)
	}
	if c.Feed.Endpoint == "" {
		return fmerror.Config("feed endpoint is required")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmerror.Config("batch size must be positive (got %d)", c.Crawler.BatchSize)
	}
	if c.Crawler.Workers <= 0 {
		return fmerror.Config("workers must be positive (got %d)", c.Crawler.Workers)
	}
	if c.Crawler.ItemTimeout <= 0 {
		return fmerror.Config("item timeout must be positive (got %s)", c.Crawler.ItemTimeout)
	}
	if c.Crawler.StartID < 0 {
		return fmerror.Config("start id must not be negative (got %d)", c.Crawler.StartID)
	}
	return nil
}
