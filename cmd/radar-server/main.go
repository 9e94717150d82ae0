package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/radarhq/radar/internal/config"
	"github.com/radarhq/radar/internal/logging"
	"github.com/radarhq/radar/internal/metrics"
	"github.com/radarhq/radar/internal/monitors"
	"github.com/radarhq/radar/internal/plugin"
	"github.com/radarhq/radar/internal/server"
	"github.com/radarhq/radar/pkg/plugins/logreply"
	"github.com/radarhq/radar/pkg/plugins/pgstore"
	"github.com/radarhq/radar/pkg/plugins/redisstore"
	"github.com/radarhq/radar/pkg/plugins/stream"
)

const defaultConfigPath = "/etc/radar/server/config/radar.yml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the server configuration file")
	flag.Parse()

	godotenv.Load() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("radar-server: %v", err)
	}

	logger, err := logging.New(cfg.LogFile)
	if err != nil {
		log.Fatalf("radar-server: %v", err)
	}

	defs, err := monitors.Load(cfg.Checks, cfg.Contacts, cfg.Monitors)
	if err != nil {
		logger.Error("can't load definitions", "error", err)
		os.Exit(1)
	}
	logger.Info("definitions loaded",
		"checks", len(defs.Checks), "groups", len(defs.Groups),
		"contacts", len(defs.Contacts), "monitors", len(defs.Monitors))

	plugins := plugin.NewRegistry()
	registerPlugins(plugins, cfg, logger)
	if err := plugins.Configure(logger); err != nil {
		logger.Error("plugin configuration failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New(nil)
	srv := server.New(cfg, defs, plugins, m, logger)

	if cfg.Metrics.Enabled {
		api := server.NewAPI(srv, plugins, logger)
		go func() {
			if err := api.Serve(cfg.Metrics.Address); err != nil {
				logger.Error("status API failed", "error", err)
			}
		}()
	}

	if cfg.PidFile != "" {
		if err := writePidFile(cfg.PidFile); err != nil {
			logger.Error("can't write pid file", "error", err)
			os.Exit(1)
		}
		defer os.Remove(cfg.PidFile) //nolint:errcheck
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		srv.Stop()
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}

func registerPlugins(plugins *plugin.Registry, cfg *config.Config, logger *slog.Logger) {
	register := func(p plugin.ServerPlugin) {
		if err := plugins.Register(p); err != nil {
			logger.Error("can't register plugin", "plugin", p.Name(), "error", err)
		}
	}

	register(logreply.New())
	if cfg.Redis.Enabled {
		register(redisstore.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB))
	}
	if cfg.Postgres.Enabled {
		register(pgstore.New(cfg.Postgres.DSN))
	}
	if cfg.Stream.Enabled {
		register(stream.New(cfg.Stream.Address))
	}
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
