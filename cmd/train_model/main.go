package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"toolusage/config"
	"toolusage/db"
	"toolusage/logging"
	"toolusage/ml"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file")
	samples := flag.Int("samples", 0, "number of synthetic rows (overrides ml.samples)")
	seed := flag.Uint64("seed", 0, "random seed (overrides ml.seed)")
	modelPath := flag.String("model_path", "", "artifact output path (overrides ml.model_path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg, setFlags(flag.CommandLine), *samples, *seed, *modelPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	generator, err := ml.NewGenerator(cfg.Generator)
	if err != nil {
		logger.Fatal("invalid generator config", zap.Error(err))
	}
	data, err := generator.Generate(cfg.ML.Samples, cfg.ML.Seed)
	if err != nil {
		logger.Fatal("failed to generate training data", zap.Error(err))
	}
	printHead(os.Stdout, data, 5)

	artifact, report, err := ml.NewTrainer(cfg.ML.Training, logger).Train(data, cfg.ML.Seed)
	if err != nil {
		logger.Fatal("failed to train model", zap.Error(err))
	}
	if err := ml.SaveArtifact(artifact, cfg.ML.ModelPath); err != nil {
		logger.Fatal("failed to save model", zap.Error(err))
	}

	fmt.Printf("Mean Absolute Error on test: %.2f usages\n", report.MAE)
	fmt.Printf("Trained model saved to %s\n", cfg.ML.ModelPath)

	if cfg.Database.Path == "" {
		return
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Warn("training log unavailable", zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.RecordTrainingRun(context.Background(), db.NewTrainingRun(report, cfg.ML.ModelPath)); err != nil {
		logger.Warn("failed to record training run", zap.Error(err))
	}
}

// setFlags names the flags given on the command line, so an explicit zero
// still overrides the config.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func applyFlags(cfg *config.Config, set map[string]bool, samples int, seed uint64, modelPath string) {
	if set["samples"] {
		cfg.ML.Samples = samples
	}
	if set["seed"] {
		cfg.ML.Seed = seed
	}
	if set["model_path"] {
		cfg.ML.ModelPath = modelPath
	}
}

func printHead(w io.Writer, data ml.Dataset, n int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\tusage_count\n",
		ml.FeatureOperationType, ml.FeatureToolName, ml.FeatureSurgeryDuration,
		ml.FeatureComplexity, ml.FeatureSurgeonExperience)
	for i := 0; i < n && i < len(data); i++ {
		row := data[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
			row.OperationType, row.ToolName, row.SurgeryDurationMin,
			row.ComplexityScore, row.SurgeonExperienceYears, row.UsageCount)
	}
	tw.Flush()
}
