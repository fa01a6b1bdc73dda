package ml

import "fmt"

// ValidationError reports a Case field outside its declared domain.
type ValidationError struct {
	Field  string
	Value  interface{}
	Min    int
	Max    int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil && e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: must be between %d and %d", e.Field, e.Value, e.Min, e.Max)
}

// TrainingDataError reports an empty or degenerate dataset. No artifact is produced.
type TrainingDataError struct {
	Reason string
}

func (e *TrainingDataError) Error() string {
	return "training data: " + e.Reason
}

// ArtifactError reports a missing, unreadable or inconsistent model artifact.
type ArtifactError struct {
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}
