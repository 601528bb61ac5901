package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/engagement-tracker/internal/api"
	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/eventlog"
	"github.com/ignite/engagement-tracker/internal/images"
	"github.com/ignite/engagement-tracker/internal/pkg/httpfetch"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("config load failed", "path", configPath, "error", err.Error())
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	events := eventlog.New(cfg.Logs.TrackingFile)
	imgReads := eventlog.New(cfg.Logs.ImgReadFile)

	recorder := tracking.NewRecorder(events, cfg.Dedup.Window())
	query := tracking.NewQuery(events, imgReads)
	fetch := httpfetch.New(nil, cfg.Images.FetchTimeout())
	resolver := images.NewResolver(cfg.Images.UploadDir, imgReads, fetch)

	handlers := api.NewHandlers(recorder, query, resolver, events, imgReads)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.SetupRoutes(handlers),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second, // must cover the 8s remote image fetch
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening",
			"addr", addr,
			"tracking_log", cfg.Logs.TrackingFile,
			"img_read_log", cfg.Logs.ImgReadFile,
			"upload_dir", cfg.Images.UploadDir,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
