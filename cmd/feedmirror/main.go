package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/mdouchement/feedmirror/internal/config"
	"github.com/mdouchement/feedmirror/internal/crawler"
	"github.com/mdouchement/feedmirror/internal/database"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/internal/logger"
	"github.com/mdouchement/feedmirror/internal/server"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfgfile   string
	backend   string
	uri       string
	batchSize int
	logLevel  string
)

func main() {
	c := &cobra.Command{
		Use:           "feedmirror",
		Short:         "Incremental mirror of a public item feed",
		Version:       fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	c.PersistentFlags().StringVarP(&cfgfile, "config", "c", "", "Configuration file")
	c.PersistentFlags().StringVarP(&backend, "backend", "", "", "Storage backend (file, sqlite, postgres)")
	c.PersistentFlags().StringVarP(&uri, "uri", "", "", "Backend connection string")
	c.PersistentFlags().IntVarP(&batchSize, "batch-size", "", 0, "Maximum items per batch")
	c.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level")

	c.AddCommand(initCmd)

	runCmd.Flags().StringP("mode", "m", crawler.ModeSyncData, "Run mode ("+strings.Join(crawler.Modes, ", ")+")")
	runCmd.Flags().Int64("start-id", 0, "Cursor used when the store is empty")
	c.AddCommand(runCmd)

	c.AddCommand(statusCmd)

	serveCmd.Flags().String("listen", "", "Listen address (host:port or unix:/path/to/socket)")
	serveCmd.Flags().Duration("interval", 0, "Delay between two syncs")
	c.AddCommand(serveCmd)

	if err := c.Execute(); err != nil {
		log.Fatalf("feedmirror: %s", err)
	}
}

// load reads the configuration and applies the command line overrides.
func load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgfile)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read configuration")
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("uri") {
		cfg.URI = uri
	}
	if flags.Changed("batch-size") {
		cfg.Crawler.BatchSize = batchSize
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("start-id") {
		cfg.Crawler.StartID, _ = flags.GetInt64("start-id")
	}
	if flags.Changed("listen") {
		cfg.Server.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("interval") {
		cfg.Server.Interval, _ = flags.GetDuration("interval")
	}

	return cfg, nil
}

// setup loads and validates the configuration then builds the logger.
// When a run mode is given, the mode/backend pair is checked first.
func setup(cmd *cobra.Command, mode string) (config.Config, *logrus.Logger, error) {
	cfg, err := load(cmd)
	if err != nil {
		return cfg, nil, err
	}

	if mode != "" && (!slices.Contains(crawler.Modes, mode) || !slices.Contains(config.Backends, cfg.Backend)) {
		return cfg, nil, fmerror.Unsupported(mode, cfg.Backend)
	}

	if err = cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	l, err := logger.New(cfg.Log)
	return cfg, l, err
}

func newClient(cfg config.Feed) (libfeed.Client, error) {
	return libfeed.NewClient(cfg.Endpoint, libfeed.Options{
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		UserAgent:         cfg.UserAgent,
	})
}

var (
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Init the storage backend",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, err := setup(cmd, "")
			if err != nil {
				return err
			}

			store, err := database.Open(cmd.Context(), cfg.Backend, cfg.URI)
			if err != nil {
				return errors.Wrap(err, "could not open store")
			}
			defer store.Close()

			l.WithField("backend", cfg.Backend).Info("store initialized")
			return nil
		},
	}

	//
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Sync the store with the feed",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, _ := cmd.Flags().GetString("mode")

			cfg, l, err := setup(cmd, mode)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newClient(cfg.Feed)
			if err != nil {
				return err
			}

			store, err := database.Open(ctx, cfg.Backend, cfg.URI)
			if err != nil {
				return errors.Wrap(err, "could not open store")
			}
			defer store.Close()

			engine := crawler.NewEngine(client, store, cfg.Crawler, l)
			defer engine.Close()

			report, err := engine.Run(ctx, mode)
			if err != nil {
				return err
			}

			return json.NewEncoder(os.Stdout).Encode(report)
		},
	}

	//
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the store state",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := setup(cmd, "")
			if err != nil {
				return err
			}

			store, err := database.Open(cmd.Context(), cfg.Backend, cfg.URI)
			if err != nil {
				return errors.Wrap(err, "could not open store")
			}
			defer store.Close()

			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}

			cursor := "empty"
			id, err := store.LastKnownID(cmd.Context())
			switch {
			case err == nil:
				cursor = fmt.Sprint(id)
			case !errors.Is(err, database.ErrEmpty):
				return err
			}

			fmt.Printf("backend: %s\n", cfg.Backend)
			fmt.Printf("items:   %d\n", count)
			fmt.Printf("cursor:  %s\n", cursor)
			return nil
		},
	}

	//
	//
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the sync daemon",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, err := setup(cmd, "")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newClient(cfg.Feed)
			if err != nil {
				return err
			}

			store, err := database.Open(ctx, cfg.Backend, cfg.URI)
			if err != nil {
				return errors.Wrap(err, "could not open store")
			}
			defer store.Close()

			syncer := crawler.NewEngine(client, store, cfg.Crawler, l)
			defer syncer.Close()

			scheduler := crawler.NewScheduler(syncer, cfg.Server.Interval, cfg.Server.Debounce, l)
			done := make(chan struct{})
			go func() {
				scheduler.Start(ctx)
				close(done)
			}()
			defer func() {
				stop()
				<-done
			}()

			engine := server.EchoEngine(server.Controller{
				Version:   version,
				Scheduler: scheduler,
				Logger:    l,
			})
			server.PrintRoutes(engine)

			go func() {
				<-ctx.Done()

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				engine.Shutdown(ctx) // nolint:errcheck
			}()

			address := cfg.Server.Listen
			message := "could not run server"
			l.Infof("Server listening on %s", address)
			parts := strings.Split(address, ":")
			if len(parts) == 2 && parts[0] == "unix" {
				socketFile := parts[1]
				if _, err := os.Stat(socketFile); err == nil {
					l.Infof("Removing existing %s", socketFile)
					os.Remove(socketFile)
				}
				defer os.Remove(socketFile)
				listener, err := net.Listen(parts[0], socketFile)
				if err != nil {
					return err
				}
				err = engine.Server.Serve(listener)
				return errors.Wrap(ignoreClosed(err), message)
			}
			return errors.Wrap(ignoreClosed(engine.Start(address)), message)
		},
	}
)

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
