package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/radouane/scanner/internal/config"
	"github.com/radouane/scanner/internal/logging"
	"github.com/spf13/cobra"

	// Providers register themselves with the provider registry.
	_ "github.com/radouane/scanner/internal/gemini"
	_ "github.com/radouane/scanner/internal/ollama"
	_ "github.com/radouane/scanner/internal/openai"
)

type globalFlags struct {
	provider string
	model    string
	language string
	category string
	strict   bool
	verbose  bool
}

// cfg is resolved once per invocation in PersistentPreRunE.
var cfg *config.Config

func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "radouane",
		Short: "Ingredient label scanner with LLM-powered health scoring",
		Long: `Radouane scans product ingredient labels and asks a vision-capable LLM to assess them.

Images come from a file, a drag-and-drop upload or a live camera. Every provider response is
validated against a strict scoring contract before it is shown.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			c, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			applyFlags(cmd, c, flags)
			if err := c.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			level := slog.LevelDebug
			if !flags.verbose {
				if level, err = logging.ParseLevel(c.LogLevel); err != nil {
					return err
				}
			}
			logging.Setup(level, os.Stderr)

			cfg = c
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.provider, "provider", config.DefaultProvider, "LLM provider (gemini, openai, or ollama)")
	pf.StringVar(&flags.model, "model", "", "Model name (defaults to provider's default)")
	pf.StringVar(&flags.language, "language", "en", "Response language (en or ar)")
	pf.StringVar(&flags.category, "category", "", "Product category hint (food_beverage, cosmetics_skincare, cleaning_supplies, other)")
	pf.BoolVar(&flags.strict, "strict", false, "Reject responses whose score disagrees with the scoring contract")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newCameraCmd())
	cmd.AddCommand(newCredentialCmd())
	cmd.AddCommand(newEvalCmd())

	return cmd
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, c *config.Config, flags *globalFlags) {
	changed := cmd.Flags().Changed
	if changed("provider") {
		c.Provider = flags.provider
	}
	if changed("model") {
		c.Model = flags.model
	}
	if changed("language") {
		c.Language = flags.language
	}
	if changed("category") {
		c.Category = flags.category
	}
	if changed("strict") {
		c.StrictScores = flags.strict
	}
}
