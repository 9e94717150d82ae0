package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/client"
	"github.com/radarhq/radar/internal/config"
	"github.com/radarhq/radar/internal/logging"
)

const defaultConfigPath = "/etc/radar/client/config/radar.yml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the client configuration file")
	flag.Parse()

	godotenv.Load() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("radar-client: %v", err)
	}

	logger, err := logging.New(cfg.LogFile)
	if err != nil {
		log.Fatalf("radar-client: %v", err)
	}

	if cfg.PidFile != "" {
		if err := os.WriteFile(cfg.PidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
			logger.Error("can't write pid file", "error", err)
			os.Exit(1)
		}
		defer os.Remove(cfg.PidFile) //nolint:errcheck
	}

	c := client.New(cfg, logger)
	executor := client.NewExecutor(c, checks.RunOptions{
		ChecksDir:        cfg.Checks,
		User:             cfg.RunAs.User,
		Group:            cfg.RunAs.Group,
		EnforceOwnership: cfg.RunAs.EnforceOwnership,
	}, logger)

	go executor.Run()
	go c.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-c.Done():
		// The client lands in STOPPED on its own when reconnecting is
		// off and the server is gone.
		logger.Info("connection stopped, shutting down")
	}

	c.Stop()
	executor.Stop()
}
