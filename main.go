package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/app"
	"github.com/Nanzhexi/aksmes/config"
	"github.com/Nanzhexi/aksmes/db"
	qhttp "github.com/Nanzhexi/aksmes/http"
	"github.com/Nanzhexi/aksmes/logging"
)

func main() {
	// 1. Load config
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	restore, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer restore()

	// 2. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		zap.S().Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	zap.S().Infof("Database initialized at %s", cfg.Database.Path)

	// 3. Wire services
	a, err := app.New(cfg)
	if err != nil {
		zap.S().Fatalf("Failed to initialize services: %v", err)
	}
	if err := a.Start(); err != nil {
		zap.S().Fatalf("Failed to start background tasks: %v", err)
	}
	defer a.Close()

	hub := qhttp.NewProgressHub()
	go hub.Start()
	defer hub.Stop()
	a.Downloader.SetProgressSink(hub)

	qhttp.SetServices(qhttp.Services{
		Downloader:     a.Downloader,
		Analyzer:       a.Analyzer,
		Tables:         a.Tables,
		Manager:        a.Manager,
		Progress:       hub,
		ValuationYears: cfg.Valuation.Years,
	})

	// 4. Start HTTP server
	serverCfg := qhttp.DefaultServerConfig()
	serverCfg.Port = cfg.Http.Port
	server := qhttp.NewServer(serverCfg)
	go func() {
		if err := server.Start(); err != nil {
			zap.S().Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("Shutting down...")

	if err := server.Stop(); err != nil {
		zap.S().Warnf("Server forced to shutdown: %v", err)
	}

	zap.S().Info("Exiting")
}
