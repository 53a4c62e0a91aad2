package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/egaotan/token-fee-harvester/app"
	"github.com/egaotan/token-fee-harvester/config"
	"github.com/egaotan/token-fee-harvester/metrics"
	"github.com/egaotan/token-fee-harvester/utils"
	"github.com/spf13/pflag"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := pflag.StringP("config", "c", config.DefaultConfigFile, "path of the JSON config file")
	checkOnly := pflag.Bool("check-only", false, "scan and report, never send a transaction")
	once := pflag.Bool("once", false, "run a single cycle and exit")
	logLevel := pflag.String("log-level", "", "override log.level from the config")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *checkOnly {
		cfg.CheckOnly = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger, err := utils.NewLog(utils.LogOption{
		Dir:     cfg.Log.Dir,
		Name:    "harvester",
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go shutdown(cancel, quit)

	harvester, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if *once {
		return harvester.Once()
	}
	return harvester.Service()
}

func shutdown(cancel context.CancelFunc, quit <-chan os.Signal) {
	osCall := <-quit
	fmt.Printf("System call: %v, harvester is shutting down......\n", osCall)
	cancel()
}
