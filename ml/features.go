package ml

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	FeatureOperationType     = "operation_type"
	FeatureToolName          = "tool_name"
	FeatureSurgeryDuration   = "surgery_duration_min"
	FeatureComplexity        = "complexity_score"
	FeatureSurgeonExperience = "surgeon_experience_years"
)

// MinUsage is the smallest usage count a tool can have in an operation it takes part in.
const MinUsage = 1

// Case describes one operation/tool pairing.
type Case struct {
	OperationType          string `json:"operation_type"`
	ToolName               string `json:"tool_name"`
	SurgeryDurationMin     int    `json:"surgery_duration_min"`
	ComplexityScore        int    `json:"complexity_score"`
	SurgeonExperienceYears int    `json:"surgeon_experience_years"`
}

// LabeledCase is a Case with its true usage count.
type LabeledCase struct {
	Case
	UsageCount int `json:"usage_count"`
}

// Dataset is an ordered set of labeled cases.
type Dataset []LabeledCase

// OperationTypes lists the known operation labels.
func OperationTypes() []string {
	return []string{
		"Appendectomy",
		"C-Section",
		"Knee Replacement",
		"CABG",
		"Cholecystectomy",
	}
}

// ToolNames lists the known tool labels.
func ToolNames() []string {
	return []string{
		"Scalpel",
		"Forceps",
		"Retractor",
		"Suction",
		"Laparoscope",
	}
}

// CategoricalFeatures lists the one-hot encoded columns in encoding order.
func CategoricalFeatures() []string {
	return []string{
		FeatureOperationType,
		FeatureToolName,
	}
}

// NumericFeatures lists the pass-through columns in encoding order.
func NumericFeatures() []string {
	return []string{
		FeatureSurgeryDuration,
		FeatureComplexity,
		FeatureSurgeonExperience,
	}
}

type bound struct {
	min int
	max int
}

var numericBounds = map[string]bound{
	FeatureSurgeryDuration:   {min: 1, max: 1000},
	FeatureComplexity:        {min: 1, max: 5},
	FeatureSurgeonExperience: {min: 0, max: 60},
}

// NormalizeLabel trims and NFC-normalizes a categorical label so that visually
// identical labels encode to the same column.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// Normalized returns a copy of c with normalized categorical labels.
func (c Case) Normalized() Case {
	c.OperationType = NormalizeLabel(c.OperationType)
	c.ToolName = NormalizeLabel(c.ToolName)
	return c
}

// Validate checks the numeric fields against their declared bounds and requires
// both categorical labels to be present. Unknown labels are accepted here.
func (c Case) Validate() error {
	for _, name := range CategoricalFeatures() {
		value, _ := c.categorical(name)
		if NormalizeLabel(value) == "" {
			return &ValidationError{Field: name, Value: value, Reason: "is required"}
		}
	}
	for _, name := range NumericFeatures() {
		value, _ := c.numeric(name)
		b := numericBounds[name]
		if int(value) < b.min || int(value) > b.max {
			return &ValidationError{Field: name, Value: int(value), Min: b.min, Max: b.max}
		}
	}
	return nil
}

// ValidateLabels rejects categorical labels outside the known label sets.
// It guards training data; serving relies on the encoder's unseen-category path.
func (c Case) ValidateLabels() error {
	if !contains(OperationTypes(), NormalizeLabel(c.OperationType)) {
		return &ValidationError{Field: FeatureOperationType, Value: c.OperationType, Reason: "unknown label"}
	}
	if !contains(ToolNames(), NormalizeLabel(c.ToolName)) {
		return &ValidationError{Field: FeatureToolName, Value: c.ToolName, Reason: "unknown label"}
	}
	return nil
}

func (c Case) categorical(name string) (string, bool) {
	switch name {
	case FeatureOperationType:
		return c.OperationType, true
	case FeatureToolName:
		return c.ToolName, true
	default:
		return "", false
	}
}

func (c Case) numeric(name string) (float64, bool) {
	switch name {
	case FeatureSurgeryDuration:
		return float64(c.SurgeryDurationMin), true
	case FeatureComplexity:
		return float64(c.ComplexityScore), true
	case FeatureSurgeonExperience:
		return float64(c.SurgeonExperienceYears), true
	default:
		return 0, false
	}
}

// Cases strips the labels from a dataset.
func (d Dataset) Cases() []Case {
	cases := make([]Case, len(d))
	for i, row := range d {
		cases[i] = row.Case
	}
	return cases
}

// Targets returns the usage counts as regression targets.
func (d Dataset) Targets() []float64 {
	targets := make([]float64, len(d))
	for i, row := range d {
		targets[i] = float64(row.UsageCount)
	}
	return targets
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
