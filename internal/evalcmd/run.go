// Package evalcmd holds the eval subcommands.
package evalcmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/radouane/scanner/internal/config"
	"github.com/radouane/scanner/internal/evaluation"
	"github.com/radouane/scanner/internal/scanerr"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command. cfg is called once the root command has resolved it.
func NewRunCmd(cfg func() *config.Config) *cobra.Command {
	var datasetPath string
	var outputDir string
	var sampleSize int
	var concurrency int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured provider over a labelled dataset",
		Long: `Runs every dataset item through the provider and the response validator.

Reports contract conformance (how many responses pass validation), score consistency (provider
score versus contract arithmetic), product name similarity and distance to reference scores.`,
		Example: `  # Evaluate 20 items with Gemini
  radouane eval run --dataset ./labels/dataset.jsonl --sample 20

  # Evaluate a parquet dataset with a local Ollama model, 4 at a time
  radouane eval run --dataset ./labels.parquet --provider ollama --model llava:13b --concurrency 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(datasetPath); os.IsNotExist(err) {
				return fmt.Errorf("dataset file not found: %s", datasetPath)
			}
			return executeRun(cmd, cfg(), datasetPath, outputDir, sampleSize, concurrency)
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "Path to a .jsonl or .parquet dataset (required)")
	cmd.Flags().StringVar(&outputDir, "output", "evals", "Directory for the YAML report")
	cmd.Flags().IntVar(&sampleSize, "sample", 0, "Number of items to evaluate (0 for all)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Number of concurrent provider requests")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func executeRun(cmd *cobra.Command, cfg *config.Config, datasetPath, outputDir string, sampleSize, concurrency int) error {
	logger := slog.Default()

	items, err := evaluation.NewLoader(datasetPath, logger).LoadSample(sampleSize)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	logger.Info("Dataset loaded", "items", len(items))

	analyzer, err := cfg.Analyzer()
	if err != nil {
		return err
	}
	credential, ok := cfg.Credentials(logger).Credential()
	if !ok {
		return scanerr.MissingCredential()
	}

	report := evaluation.Run(cmd.Context(), items, analyzer, evaluation.Options{
		Provider:    cfg.Provider,
		Model:       cfg.ModelName(),
		Credential:  credential,
		Language:    cfg.Language,
		Policy:      cfg.Policy(),
		Concurrency: concurrency,
		MaxBytes:    cfg.MaxImageBytes,
		Logger:      logger,
	})
	report.Config.DatasetPath = datasetPath

	path, err := evaluation.SaveYAML(report, outputDir)
	if err != nil {
		return err
	}

	evaluation.PrintSummary(cmd.OutOrStdout(), report)
	fmt.Fprintf(cmd.OutOrStdout(), "\nResults saved to: %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "\nGenerate a detailed report with:\n  radouane eval report --results %s\n", path)
	return nil
}
