package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"toolusage/ml"
)

// Store keeps the training log and an audit trail of served predictions.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_version TEXT NOT NULL UNIQUE,
        model_name VARCHAR(50) NOT NULL,
        mae REAL NOT NULL,
        train_rows INTEGER NOT NULL,
        test_rows INTEGER NOT NULL,
        features INTEGER NOT NULL,
        trees INTEGER NOT NULL,
        seed INTEGER NOT NULL,
        duration_ms INTEGER NOT NULL,
        artifact_path TEXT NOT NULL,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_version TEXT NOT NULL,
        operation_type TEXT NOT NULL,
        tool_name TEXT NOT NULL,
        surgery_duration_min INTEGER NOT NULL,
        complexity_score INTEGER NOT NULL,
        surgeon_experience_years INTEGER NOT NULL,
        raw_prediction REAL NOT NULL,
        predicted_usage INTEGER NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TrainingRun is one row of training_log.
type TrainingRun struct {
	ModelVersion string    `json:"model_version"`
	ModelName    string    `json:"model_name"`
	MAE          float64   `json:"mae"`
	TrainRows    int       `json:"train_rows"`
	TestRows     int       `json:"test_rows"`
	Features     int       `json:"features"`
	Trees        int       `json:"trees"`
	Seed         uint64    `json:"seed"`
	DurationMs   int64     `json:"duration_ms"`
	ArtifactPath string    `json:"artifact_path"`
	TrainedAt    time.Time `json:"trained_at"`
}

// NewTrainingRun converts a training report into a log row.
func NewTrainingRun(report *ml.TrainingReport, artifactPath string) TrainingRun {
	return TrainingRun{
		ModelVersion: report.ModelVersion,
		ModelName:    "random_forest",
		MAE:          report.MAE,
		TrainRows:    report.TrainRows,
		TestRows:     report.TestRows,
		Features:     report.Features,
		Trees:        report.Trees,
		Seed:         report.Seed,
		DurationMs:   report.Duration.Milliseconds(),
		ArtifactPath: artifactPath,
		TrainedAt:    report.TrainedAt,
	}
}

// RecordTrainingRun appends run to the training log. Model versions are unique.
func (s *Store) RecordTrainingRun(ctx context.Context, run TrainingRun) error {
	if run.ModelVersion == "" {
		return errors.New("model version is required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_version, model_name, mae, train_rows, test_rows, features,
            trees, seed, duration_ms, artifact_path, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ModelVersion, run.ModelName, run.MAE, run.TrainRows, run.TestRows, run.Features,
		run.Trees, int64(run.Seed), run.DurationMs, run.ArtifactPath, run.TrainedAt.UTC(),
	)
	return err
}

// LoadTrainingLog returns the most recent runs first.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_version, model_name, mae, train_rows, test_rows, features,
               trees, seed, duration_ms, artifact_path, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		var seed int64
		if err := rows.Scan(&run.ModelVersion, &run.ModelName, &run.MAE, &run.TrainRows, &run.TestRows,
			&run.Features, &run.Trees, &seed, &run.DurationMs, &run.ArtifactPath, &run.TrainedAt); err != nil {
			return nil, err
		}
		run.Seed = uint64(seed)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ModelVersion string              `json:"model_version"`
	Case         ml.Case             `json:"case"`
	Result       ml.PredictionResult `json:"result"`
	CreatedAt    time.Time           `json:"created_at"`
}

// RecordPrediction stores a served prediction with the model version that made it.
func (s *Store) RecordPrediction(ctx context.Context, modelVersion string, c ml.Case, r ml.PredictionResult) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (
            model_version, operation_type, tool_name, surgery_duration_min, complexity_score,
            surgeon_experience_years, raw_prediction, predicted_usage, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		modelVersion, c.OperationType, c.ToolName, c.SurgeryDurationMin, c.ComplexityScore,
		c.SurgeonExperienceYears, r.RawPrediction, r.PredictedUsage, time.Now().UTC(),
	)
	return err
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_version, operation_type, tool_name, surgery_duration_min, complexity_score,
               surgeon_experience_years, raw_prediction, predicted_usage, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		if err := rows.Scan(&rec.ModelVersion, &rec.Case.OperationType, &rec.Case.ToolName,
			&rec.Case.SurgeryDurationMin, &rec.Case.ComplexityScore, &rec.Case.SurgeonExperienceYears,
			&rec.Result.RawPrediction, &rec.Result.PredictedUsage, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
