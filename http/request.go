package http

import "toolusage/ml"

// caseRequest is the wire form of ml.Case. Every field is required; pointers
// tell an omitted field apart from a zero value.
type caseRequest struct {
	OperationType          *string `json:"operation_type"`
	ToolName               *string `json:"tool_name"`
	SurgeryDurationMin     *int    `json:"surgery_duration_min"`
	ComplexityScore        *int    `json:"complexity_score"`
	SurgeonExperienceYears *int    `json:"surgeon_experience_years"`
}

// toCase reports the first missing field, in declaration order, as a
// ValidationError.
func (r caseRequest) toCase() (ml.Case, error) {
	missing := func(field string) error {
		return &ml.ValidationError{Field: field, Reason: "is required"}
	}
	switch {
	case r.OperationType == nil:
		return ml.Case{}, missing(ml.FeatureOperationType)
	case r.ToolName == nil:
		return ml.Case{}, missing(ml.FeatureToolName)
	case r.SurgeryDurationMin == nil:
		return ml.Case{}, missing(ml.FeatureSurgeryDuration)
	case r.ComplexityScore == nil:
		return ml.Case{}, missing(ml.FeatureComplexity)
	case r.SurgeonExperienceYears == nil:
		return ml.Case{}, missing(ml.FeatureSurgeonExperience)
	}
	return ml.Case{
		OperationType:          *r.OperationType,
		ToolName:               *r.ToolName,
		SurgeryDurationMin:     *r.SurgeryDurationMin,
		ComplexityScore:        *r.ComplexityScore,
		SurgeonExperienceYears: *r.SurgeonExperienceYears,
	}, nil
}
