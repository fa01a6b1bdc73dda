package ml

import (
	"sync"
	"testing"
)

var (
	fixtureOnce     sync.Once
	fixtureArtifact *Artifact
	fixtureReport   *TrainingReport
	fixtureErr      error
)

func testTrainerConfig() TrainerConfig {
	config := DefaultTrainerConfig()
	config.Forest.NEstimators = 40
	config.Forest.MaxDepth = 12
	config.Forest.MinSamplesLeaf = 3
	return config
}

// trainedFixture trains once on 3000 generated rows and shares the result.
func trainedFixture(t *testing.T) (*Artifact, *TrainingReport) {
	t.Helper()
	fixtureOnce.Do(func() {
		ds, err := GenerateDataset(3000, 42)
		if err != nil {
			fixtureErr = err
			return
		}
		fixtureArtifact, fixtureReport, fixtureErr = NewTrainer(testTrainerConfig(), nil).Train(ds, 42)
	})
	if fixtureErr != nil {
		t.Fatalf("unexpected error: %v", fixtureErr)
	}
	return fixtureArtifact, fixtureReport
}

func appendectomyCase() Case {
	return Case{
		OperationType:          "Appendectomy",
		ToolName:               "Scalpel",
		SurgeryDurationMin:     90,
		ComplexityScore:        3,
		SurgeonExperienceYears: 10,
	}
}
