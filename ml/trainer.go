package ml

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrainerConfig holds the split ratio and forest hyperparameters.
type TrainerConfig struct {
	TestRatio float64      `yaml:"test_ratio"`
	Forest    ForestConfig `yaml:"forest"`
}

// DefaultTrainerConfig is an 80/20 split with DefaultForestConfig.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		TestRatio: DefaultTestRatio,
		Forest:    DefaultForestConfig(),
	}
}

// TrainingReport summarizes one training run.
type TrainingReport struct {
	ModelVersion string        `json:"model_version"`
	MAE          float64       `json:"mae"`
	TrainRows    int           `json:"train_rows"`
	TestRows     int           `json:"test_rows"`
	Features     int           `json:"features"`
	Trees        int           `json:"trees"`
	Seed         uint64        `json:"seed"`
	Duration     time.Duration `json:"duration"`
	TrainedAt    time.Time     `json:"trained_at"`
}

// Trainer fits the encoder and forest on a dataset and evaluates the result on
// a held-out split.
type Trainer struct {
	config TrainerConfig
	logger *zap.Logger
}

// NewTrainer fills unset fields from DefaultTrainerConfig. A nil logger discards output.
func NewTrainer(config TrainerConfig, logger *zap.Logger) *Trainer {
	if config.TestRatio <= 0 || config.TestRatio >= 1 {
		config.TestRatio = DefaultTestRatio
	}
	if config.Forest.NEstimators <= 0 {
		config.Forest.NEstimators = DefaultForestConfig().NEstimators
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{config: config, logger: logger}
}

// Train splits ds, fits the encoder on the training rows only, fits the forest
// and reports the test MAE. On error no artifact is returned.
func (t *Trainer) Train(ds Dataset, seed uint64) (*Artifact, *TrainingReport, error) {
	start := time.Now()
	if len(ds) == 0 {
		return nil, nil, &TrainingDataError{Reason: "dataset is empty"}
	}
	for i, row := range ds {
		if err := row.Validate(); err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := row.ValidateLabels(); err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		if row.UsageCount < MinUsage {
			return nil, nil, &ValidationError{Field: "usage_count", Value: row.UsageCount, Reason: fmt.Sprintf("row %d is below %d", i, MinUsage)}
		}
	}
	if isConstant(ds.Targets(), allRows(len(ds))) {
		return nil, nil, &TrainingDataError{Reason: fmt.Sprintf("all %d rows share usage count %d", len(ds), ds[0].UsageCount)}
	}

	train, test := TrainTestSplit(ds, t.config.TestRatio, seed)
	if len(train) == 0 || len(test) == 0 {
		return nil, nil, &TrainingDataError{Reason: fmt.Sprintf("split of %d rows left an empty partition (train=%d, test=%d)", len(ds), len(train), len(test))}
	}
	t.logger.Info("dataset split",
		zap.Int("rows", len(ds)),
		zap.Int("train_rows", len(train)),
		zap.Int("test_rows", len(test)),
		zap.Uint64("seed", seed),
	)

	encoder, err := FitEncoder(train.Cases(), CategoricalFeatures(), NumericFeatures())
	if err != nil {
		return nil, nil, fmt.Errorf("fit encoder: %w", err)
	}
	trainX, err := encoder.Transform(train.Cases())
	if err != nil {
		return nil, nil, fmt.Errorf("encode train set: %w", err)
	}

	forest := NewRandomForest(t.config.Forest)
	if err := forest.Fit(trainX, train.Targets(), seed); err != nil {
		return nil, nil, fmt.Errorf("fit forest: %w", err)
	}

	testX, err := encoder.Transform(test.Cases())
	if err != nil {
		return nil, nil, fmt.Errorf("encode test set: %w", err)
	}
	mae, err := Evaluate(forest, testX, test.Targets())
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate: %w", err)
	}

	now := time.Now().UTC()
	artifact := &Artifact{
		FormatVersion:       ArtifactFormatVersion,
		ModelVersion:        uuid.NewString(),
		CreatedAt:           now,
		CategoricalFeatures: append([]string(nil), encoder.Categorical...),
		NumericFeatures:     append([]string(nil), encoder.Numeric...),
		Encoder:             encoder,
		Model:               forest,
		Metrics: ArtifactMetrics{
			TestMAE:   mae,
			TrainRows: len(train),
			TestRows:  len(test),
		},
	}
	report := &TrainingReport{
		ModelVersion: artifact.ModelVersion,
		MAE:          mae,
		TrainRows:    len(train),
		TestRows:     len(test),
		Features:     encoder.Width(),
		Trees:        len(forest.Trees),
		Seed:         seed,
		Duration:     time.Since(start),
		TrainedAt:    now,
	}
	t.logger.Info("model trained",
		zap.String("model_version", report.ModelVersion),
		zap.Float64("mae", mae),
		zap.Int("features", report.Features),
		zap.Int("trees", report.Trees),
		zap.Duration("duration", report.Duration),
	)
	return artifact, report, nil
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
