package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/plainmed/plainmed/config"
	"github.com/plainmed/plainmed/errors"
	"github.com/plainmed/plainmed/server"
	"go.uber.org/zap"
)

var (
	configFile  = flag.String("config", "plainmed.yaml", "Path to configuration file")
	validate    = flag.Bool("validate", false, "Validate configuration and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("plainmed %s\n", server.Version)
		os.Exit(0)
	}

	// Local development keeps the API key in a .env file; missing is fine.
	_ = godotenv.Load()

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	errors.SetLogger(logger)

	watcher, err := newWatcher(*configFile, logger)
	if err != nil {
		logger.Fatal("failed to load configuration",
			zap.String("path", *configFile),
			zap.Error(err),
		)
	}
	defer watcher.Close()

	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	cfg := watcher.GetCurrentConfig()
	llm, err := server.NewLLM(cfg.LLM)
	if err != nil {
		logger.Fatal("failed to create LLM client",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model),
			zap.Error(err),
		)
	}

	srv := server.NewServer(watcher, llm, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting plainmed",
		zap.String("version", server.Version),
		zap.Int("port", cfg.Server.Port),
	)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// newWatcher prefers a file-backed watcher so rate-limit settings reload
// without a restart. When no config file exists the server runs on
// defaults.
func newWatcher(path string, logger *zap.Logger) (config.Watcher, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("no configuration file, using defaults",
			zap.String("path", path),
		)
		return config.NewStaticWatcher(config.DefaultConfig()), nil
	}
	return config.NewConfigWatcher(path, logger)
}
