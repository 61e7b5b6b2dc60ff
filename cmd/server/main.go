package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/app"
	"github.com/ogurasousui/checkin-ledger/internal/platform/config"
	"github.com/ogurasousui/checkin-ledger/internal/platform/logging"
	"github.com/ogurasousui/checkin-ledger/internal/platform/metrics"
	"github.com/ogurasousui/checkin-ledger/internal/platform/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := config.LoadEnvFiles(".env", ".env.local"); err != nil {
		logrus.Fatalf("failed to load env files: %v", err)
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		logrus.Fatalf("failed to configure logging: %v", err)
	}

	recorder := metrics.NewRecorder()
	application, err := app.New(ctx, cfg, logger, recorder)
	if err != nil {
		logger.Fatalf("failed to initialize application: %v", err)
	}
	defer application.Close()

	if metricsServer := metrics.NewServer(cfg.Metrics); metricsServer != nil {
		go func() {
			logger.Infof("metrics listening on %s%s", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	grpcServer := server.New(cfg.Server.ListenAddr, application.Handler, logger, recorder)

	logger.Infof("gRPC server listening on %s", cfg.Server.ListenAddr)

	if err := grpcServer.Run(ctx); err != nil {
		logger.Fatalf("server stopped with error: %v", err)
	}
}
