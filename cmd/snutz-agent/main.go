package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/perquyk/snutz/internal/agent"
	"github.com/perquyk/snutz/internal/probe"
	"github.com/perquyk/snutz/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("SNUTZ agent starting", zap.String("version", version.Version))

	config, err := agent.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := config.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	client := agent.NewClient(config.ServerURL)
	runners := probe.NewSet(logger)
	a := agent.New(config, client, runners, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		logger.Fatal("agent error", zap.Error(err))
	}

	logger.Info("SNUTZ agent stopped")
}
