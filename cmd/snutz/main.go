package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/perquyk/snutz/internal/event"
	"github.com/perquyk/snutz/internal/fleet"
	"github.com/perquyk/snutz/internal/plugin"
	"github.com/perquyk/snutz/internal/server"
	"github.com/perquyk/snutz/internal/store"
	"github.com/perquyk/snutz/internal/version"
	pkgplugin "github.com/perquyk/snutz/pkg/plugin"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		}
	}
	serve(os.Args[1:])
}

func serve(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("SNUTZ server starting", zap.String("version", version.Version))

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := store.New(config.GetString("storage.path"))
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()

	bus := event.NewBus(logger)

	registry := plugin.NewRegistry(logger)

	modules := []pkgplugin.Module{
		fleet.New(),
	}
	for _, m := range modules {
		if sc, ok := m.(pkgplugin.StoreConsumer); ok {
			sc.SetStore(db)
		}
		if bc, ok := m.(pkgplugin.BusConsumer); ok {
			bc.SetBus(bus)
		}
		if err := registry.Register(m); err != nil {
			logger.Fatal("failed to register module", zap.Error(err))
		}
	}

	if err := registry.InitAll(config); err != nil {
		logger.Fatal("failed to initialize modules", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registry.StartAll(ctx); err != nil {
		logger.Fatal("failed to start modules", zap.Error(err))
	}

	addr := config.GetString("server.host") + ":" + config.GetString("server.port")
	if addr == ":" {
		addr = "0.0.0.0:8080"
	}
	srv := server.New(addr, registry, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("SNUTZ server ready", zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	registry.StopAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("SNUTZ server stopped")
}
