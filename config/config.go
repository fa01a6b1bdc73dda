// Package config loads config.yaml for the trainer and the prediction server.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"toolusage/logging"
	"toolusage/ml"
)

// DefaultPath is read when -config is not given.
const DefaultPath = "config.yaml"

// Config is the full config.yaml layout shared by training and serving.
type Config struct {
	Http struct {
		Port         int           `yaml:"port"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log      logging.Config `yaml:"log"`
	Database struct {
		Path              string `yaml:"path"`
		RecordPredictions bool   `yaml:"record_predictions"`
	} `yaml:"database"`
	ML struct {
		ModelPath string           `yaml:"model_path"`
		Samples   int              `yaml:"samples"`
		Seed      uint64           `yaml:"seed"`
		CacheSize int              `yaml:"cache_size"`
		Training  ml.TrainerConfig `yaml:"training"`
	} `yaml:"ml"`
	Generator ml.GeneratorConfig `yaml:"generator"`
	LLM       struct {
		URL       string        `yaml:"url"`
		Model     string        `yaml:"model"`
		MaxTokens int           `yaml:"max_tokens"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"llm"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Http.Port = 8000
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.MaxBodyBytes = 1 << 20
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 50
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 14
	cfg.Database.Path = "data/toolusage.db"
	cfg.ML.ModelPath = ml.DefaultArtifactPath
	cfg.ML.Samples = 3000
	cfg.ML.Seed = 42
	cfg.ML.CacheSize = 1024
	cfg.ML.Training = ml.DefaultTrainerConfig()
	cfg.Generator = ml.DefaultGeneratorConfig()
	cfg.LLM.URL = "http://localhost:11434/api/generate"
	cfg.LLM.Model = "llama3.2"
	cfg.LLM.MaxTokens = 256
	cfg.LLM.Timeout = 120 * time.Second
	return &cfg
}

// Load reads path over the defaults. A missing file is not an error; every
// run then uses Default(). OLLAMA_URL overrides llm.url.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		cfg.LLM.URL = url
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings that would fail later at startup.
func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.ML.ModelPath == "" {
		return errors.New("ml.model_path is required")
	}
	if c.ML.Samples < 1 {
		return fmt.Errorf("ml.samples must be positive, got %d", c.ML.Samples)
	}
	if err := c.Generator.Validate(); err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	return nil
}

// Watch calls onChange with the reloaded config each time path is written,
// until ctx is done. Invalid edits are logged and skipped. The parent
// directory is watched so editors that replace the file are handled.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				logger.Info("config reloaded", zap.String("path", path))
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
