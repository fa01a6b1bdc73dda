package ml

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PredictionResult carries both the regressor output and the usage count shown
// to users.
type PredictionResult struct {
	PredictedUsage int     `json:"predicted_usage"`
	RawPrediction  float64 `json:"raw_prediction"`
}

// PredictionService answers predictions from a loaded artifact. It holds the
// artifact read-only and is safe for concurrent use.
type PredictionService struct {
	artifact *Artifact
	cache    *lru.Cache[Case, PredictionResult]
}

// PredictionOption configures a PredictionService.
type PredictionOption func(*PredictionService) error

// WithCache memoizes up to size results. Predictions are pure, so a cached
// result is identical to a recomputed one.
func WithCache(size int) PredictionOption {
	return func(s *PredictionService) error {
		if size <= 0 {
			return nil
		}
		cache, err := lru.New[Case, PredictionResult](size)
		if err != nil {
			return err
		}
		s.cache = cache
		return nil
	}
}

// NewPredictionService validates artifact before serving from it.
func NewPredictionService(artifact *Artifact, opts ...PredictionOption) (*PredictionService, error) {
	if artifact == nil {
		return nil, errors.New("artifact is required")
	}
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}
	s := &PredictionService{artifact: artifact}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Artifact returns the loaded artifact. Callers must not modify it.
func (s *PredictionService) Artifact() *Artifact {
	return s.artifact
}

// Predict validates c, encodes it with the artifact's encoder and returns the
// raw forest output alongside max(1, round(raw)). Unknown categorical labels
// are not an error; they encode as all-zero indicator blocks.
func (s *PredictionService) Predict(c Case) (PredictionResult, error) {
	if err := c.Validate(); err != nil {
		return PredictionResult{}, err
	}
	c = c.Normalized()
	if s.cache != nil {
		if cached, ok := s.cache.Get(c); ok {
			return cached, nil
		}
	}

	row := s.artifact.Encoder.TransformOne(c)
	raw, err := s.artifact.Model.Predict(row)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("predict: %w", err)
	}
	result := PredictionResult{
		PredictedUsage: ClampUsage(raw),
		RawPrediction:  raw,
	}
	if s.cache != nil {
		s.cache.Add(c, result)
	}
	return result, nil
}
