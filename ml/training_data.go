package ml

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// IntRange is an inclusive integer range.
type IntRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

func (r IntRange) draw(rng *rand.Rand) int {
	return r.Min + rng.IntN(r.Max-r.Min+1)
}

// GeneratorConfig holds the ground-truth formula used to synthesize training data:
//
//	usage = BaseUsage[tool]*OperationMultiplier[op] + DurationCoef*duration
//	        + ComplexityCoef*complexity - ExperienceCoef*experience + N(0, NoiseStdDev)
type GeneratorConfig struct {
	OperationTypes      []string           `yaml:"operation_types"`
	ToolNames           []string           `yaml:"tool_names"`
	BaseUsage           map[string]float64 `yaml:"base_usage"`
	OperationMultiplier map[string]float64 `yaml:"operation_multiplier"`
	DurationCoef        float64            `yaml:"duration_coef"`
	ComplexityCoef      float64            `yaml:"complexity_coef"`
	ExperienceCoef      float64            `yaml:"experience_coef"`
	NoiseStdDev         float64            `yaml:"noise_std_dev"`
	Duration            IntRange           `yaml:"duration"`
	Complexity          IntRange           `yaml:"complexity"`
	Experience          IntRange           `yaml:"experience"`
}

// DefaultGeneratorConfig returns the built-in usage tables and coefficients.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		OperationTypes: OperationTypes(),
		ToolNames:      ToolNames(),
		BaseUsage: map[string]float64{
			"Scalpel":     10,
			"Forceps":     15,
			"Retractor":   8,
			"Suction":     20,
			"Laparoscope": 5,
		},
		OperationMultiplier: map[string]float64{
			"Appendectomy":     0.8,
			"C-Section":        1.0,
			"Knee Replacement": 1.2,
			"CABG":             1.5,
			"Cholecystectomy":  1.1,
		},
		DurationCoef:   0.05,
		ComplexityCoef: 1.5,
		ExperienceCoef: 0.1,
		NoiseStdDev:    3,
		Duration:       IntRange{Min: 30, Max: 300},
		Complexity:     IntRange{Min: 1, Max: 5},
		Experience:     IntRange{Min: 1, Max: 30},
	}
}

// Validate checks that the tables cover every label and the ranges stay in bounds.
func (c GeneratorConfig) Validate() error {
	if len(c.OperationTypes) == 0 || len(c.ToolNames) == 0 {
		return errors.New("generator needs at least one operation type and one tool")
	}
	for _, tool := range c.ToolNames {
		if _, ok := c.BaseUsage[tool]; !ok {
			return fmt.Errorf("missing base usage for tool %q", tool)
		}
	}
	for _, op := range c.OperationTypes {
		if _, ok := c.OperationMultiplier[op]; !ok {
			return fmt.Errorf("missing multiplier for operation %q", op)
		}
	}
	if c.NoiseStdDev < 0 {
		return errors.New("noise std dev must not be negative")
	}
	ranges := map[string]IntRange{
		FeatureSurgeryDuration:   c.Duration,
		FeatureComplexity:        c.Complexity,
		FeatureSurgeonExperience: c.Experience,
	}
	for _, name := range NumericFeatures() {
		r := ranges[name]
		b := numericBounds[name]
		if r.Min > r.Max {
			return fmt.Errorf("%s range [%d, %d] is empty", name, r.Min, r.Max)
		}
		if r.Min < b.min || r.Max > b.max {
			return fmt.Errorf("%s range [%d, %d] exceeds [%d, %d]", name, r.Min, r.Max, b.min, b.max)
		}
	}
	return nil
}

// ExpectedUsage is the noise-free part of the formula.
// Labels outside the tables are a programming error and panic.
func (c GeneratorConfig) ExpectedUsage(cs Case) float64 {
	base, ok := c.BaseUsage[cs.ToolName]
	if !ok {
		panic(fmt.Sprintf("ml: no base usage for tool %q", cs.ToolName))
	}
	factor, ok := c.OperationMultiplier[cs.OperationType]
	if !ok {
		panic(fmt.Sprintf("ml: no multiplier for operation %q", cs.OperationType))
	}
	return base*factor +
		c.DurationCoef*float64(cs.SurgeryDurationMin) +
		c.ComplexityCoef*float64(cs.ComplexityScore) -
		c.ExperienceCoef*float64(cs.SurgeonExperienceYears)
}

// Generator produces reproducible synthetic datasets.
type Generator struct {
	config GeneratorConfig
}

// NewGenerator validates config and returns a generator for it.
func NewGenerator(config GeneratorConfig) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Generator{config: config}, nil
}

// Config returns a copy of the generator settings.
func (g *Generator) Config() GeneratorConfig {
	return g.config
}

// Generate draws n labeled cases. The same (n, seed) always yields the same dataset.
func (g *Generator) Generate(n int, seed uint64) (Dataset, error) {
	if n < 1 {
		return nil, &TrainingDataError{Reason: fmt.Sprintf("sample count must be positive, got %d", n)}
	}
	rng := newRand(seed, generatorStream)
	dataset := make(Dataset, 0, n)
	for i := 0; i < n; i++ {
		cs := Case{
			OperationType:          g.config.OperationTypes[rng.IntN(len(g.config.OperationTypes))],
			ToolName:               g.config.ToolNames[rng.IntN(len(g.config.ToolNames))],
			SurgeryDurationMin:     g.config.Duration.draw(rng),
			ComplexityScore:        g.config.Complexity.draw(rng),
			SurgeonExperienceYears: g.config.Experience.draw(rng),
		}
		usage := g.config.ExpectedUsage(cs) + rng.NormFloat64()*g.config.NoiseStdDev
		dataset = append(dataset, LabeledCase{Case: cs, UsageCount: ClampUsage(usage)})
	}
	return dataset, nil
}

// GenerateDataset runs the default generator.
func GenerateDataset(n int, seed uint64) (Dataset, error) {
	g, err := NewGenerator(DefaultGeneratorConfig())
	if err != nil {
		return nil, err
	}
	return g.Generate(n, seed)
}

// PCG stream ids, so that generation, splitting and tree fitting never share a
// sequence even when they are given the same seed. Trees use 1..NEstimators.
const (
	generatorStream uint64 = 0
	splitStream     uint64 = 1 << 32
)

// newRand derives an independent PCG stream from a seed and a stream id.
func newRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream^0x9e3779b97f4a7c15))
}
