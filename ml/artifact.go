package ml

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// ArtifactFormatVersion changes whenever the on-disk layout does.
const ArtifactFormatVersion = 1

// DefaultArtifactPath is where training writes and serving reads the model.
const DefaultArtifactPath = "models/model.json.gz"

// Artifact bundles everything serving needs to reproduce the training-time
// column layout: the fitted encoder, the fitted forest and the feature lists.
// It is never modified after Train returns it.
type Artifact struct {
	FormatVersion       int             `json:"format_version"`
	ModelVersion        string          `json:"model_version"`
	CreatedAt           time.Time       `json:"created_at"`
	CategoricalFeatures []string        `json:"categorical_features"`
	NumericFeatures     []string        `json:"numeric_features"`
	Encoder             *OneHotEncoder  `json:"encoder"`
	Model               *RandomForest   `json:"model"`
	Metrics             ArtifactMetrics `json:"metrics"`
}

// ArtifactMetrics records how the model scored on its held-out split.
type ArtifactMetrics struct {
	TestMAE   float64 `json:"test_mae"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

// ArtifactInfo is the artifact metadata without the fitted parameters.
type ArtifactInfo struct {
	ModelVersion string          `json:"model_version"`
	CreatedAt    time.Time       `json:"created_at"`
	FeatureNames []string        `json:"feature_names"`
	Trees        int             `json:"trees"`
	Metrics      ArtifactMetrics `json:"metrics"`
}

// Info summarizes the artifact for GET /api/model.
func (a *Artifact) Info() ArtifactInfo {
	return ArtifactInfo{
		ModelVersion: a.ModelVersion,
		CreatedAt:    a.CreatedAt,
		FeatureNames: a.Encoder.FeatureNames(),
		Trees:        len(a.Model.Trees),
		Metrics:      a.Metrics,
	}
}

// Validate checks that the encoder and model agree on the column layout.
func (a *Artifact) Validate() error {
	if a.FormatVersion != ArtifactFormatVersion {
		return fmt.Errorf("unsupported format version %d (want %d)", a.FormatVersion, ArtifactFormatVersion)
	}
	if a.Encoder == nil {
		return errors.New("missing encoder")
	}
	if a.Model == nil || len(a.Model.Trees) == 0 {
		return errors.New("missing model")
	}
	if !slices.Equal(a.CategoricalFeatures, a.Encoder.Categorical) {
		return fmt.Errorf("categorical features %v do not match encoder %v", a.CategoricalFeatures, a.Encoder.Categorical)
	}
	if !slices.Equal(a.NumericFeatures, a.Encoder.Numeric) {
		return fmt.Errorf("numeric features %v do not match encoder %v", a.NumericFeatures, a.Encoder.Numeric)
	}
	if a.Encoder.Width() != a.Model.NFeatures {
		return fmt.Errorf("encoder produces %d columns but model expects %d", a.Encoder.Width(), a.Model.NFeatures)
	}
	for i, tree := range a.Model.Trees {
		if tree == nil || len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", i)
		}
	}
	return nil
}

// SaveArtifact writes a gzip-compressed JSON bundle. The file is replaced
// atomically so a reader never observes a partial artifact.
func SaveArtifact(a *Artifact, path string) error {
	if a == nil {
		return &ArtifactError{Path: path, Err: errors.New("nil artifact")}
	}
	if err := a.Validate(); err != nil {
		return &ArtifactError{Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ArtifactError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return &ArtifactError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	buffered := bufio.NewWriter(tmp)
	zw := gzip.NewWriter(buffered)
	if err := json.NewEncoder(zw).Encode(a); err != nil {
		tmp.Close()
		return &ArtifactError{Path: path, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return &ArtifactError{Path: path, Err: err}
	}
	if err := buffered.Flush(); err != nil {
		tmp.Close()
		return &ArtifactError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ArtifactError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &ArtifactError{Path: path, Err: err}
	}
	return nil
}

// LoadArtifact reads and validates a bundle written by SaveArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ArtifactError{Path: path, Err: err}
	}
	defer file.Close()

	zr, err := gzip.NewReader(bufio.NewReader(file))
	if err != nil {
		return nil, &ArtifactError{Path: path, Err: fmt.Errorf("decompress: %w", err)}
	}
	defer zr.Close()

	var a Artifact
	if err := json.NewDecoder(zr).Decode(&a); err != nil {
		return nil, &ArtifactError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := a.Validate(); err != nil {
		return nil, &ArtifactError{Path: path, Err: err}
	}
	return &a, nil
}
