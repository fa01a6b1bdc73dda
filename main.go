package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"toolusage/config"
	"toolusage/db"
	qhttp "toolusage/http"
	"toolusage/llm"
	"toolusage/logging"
	"toolusage/ml"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(*configPath); err == nil {
		err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
			if err := logging.SetLevel(level, next.Log.Level); err != nil {
				logger.Warn("invalid log level", zap.String("level", next.Log.Level), zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		}
	}

	// 2. Load the trained model
	artifact, err := ml.LoadArtifact(cfg.ML.ModelPath)
	if err != nil {
		logger.Fatal("failed to load model, run train_model first", zap.Error(err))
	}
	service, err := ml.NewPredictionService(artifact, ml.WithCache(cfg.ML.CacheSize))
	if err != nil {
		logger.Fatal("failed to build prediction service", zap.Error(err))
	}
	info := artifact.Info()
	logger.Info("model loaded",
		zap.String("path", cfg.ML.ModelPath),
		zap.String("model_version", info.ModelVersion),
		zap.Float64("test_mae", info.Metrics.TestMAE),
	)

	opts := []qhttp.HandlerOption{
		qhttp.WithExplainer(llm.NewOllamaExplainer(cfg.LLM.URL, cfg.LLM.Model, cfg.LLM.Timeout, cfg.LLM.MaxTokens, logger)),
	}

	// 3. Prediction audit trail
	if cfg.Database.RecordPredictions {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Fatal("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
		}
		defer store.Close()
		opts = append(opts, qhttp.WithRecorder(store))
		logger.Info("recording predictions", zap.String("path", cfg.Database.Path))
	}

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:         cfg.Http.Port,
		Timeout:      cfg.Http.Timeout,
		MaxBodyBytes: cfg.Http.MaxBodyBytes,
	}, qhttp.NewHandlers(service, info, logger, opts...), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
