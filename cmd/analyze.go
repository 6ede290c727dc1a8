package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/radouane/scanner/internal/capture"
	"github.com/radouane/scanner/internal/credentials"
	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/scan"
	"github.com/radouane/scanner/internal/scoring"
	"github.com/radouane/scanner/internal/session"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAnalyzeCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyze an ingredient label photo",
		Long: `Analyzes a product photo with the configured provider and prints the validated result.

The image goes through the same validation as uploads: it must be a real image within the
configured size limit.`,
		Example: `  # Analyze with the default provider
  radouane analyze label.jpg

  # Arabic response as YAML using OpenAI
  radouane analyze label.jpg --provider openai --language ar --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			sess, err := newCLISession(nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			if _, err := sess.SelectImage(imageasset.FromFile(filepath.Base(args[0]), "", data)); err != nil {
				return err
			}
			snap, err := runAnalysis(cmd.Context(), sess)
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), snap, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, or yaml)")

	return cmd
}

// newCLISession builds a single session from the resolved configuration.
func newCLISession(device capture.Device) (*session.Session, error) {
	logger := slog.Default()
	analyzer, err := cfg.Analyzer()
	if err != nil {
		return nil, err
	}
	creds := cfg.Credentials(logger)
	creds.OnRequest(func(provider string) {
		fmt.Fprintf(os.Stderr, "No credential for %s. Set %s or run: radouane credential set\n", provider, cfg.CredentialEnv())
	})

	f := &session.Factory{
		Previews:    imageasset.NewPreviewStore(),
		MaxBytes:    cfg.MaxImageBytes,
		Device:      device,
		Analyzer:    analyzer,
		Credentials: creds,
		Options: scan.Options{
			Language: cfg.Language,
			Category: cfg.Category,
			Policy:   cfg.Policy(),
		},
		Logger: logger,
	}
	return f.New(), nil
}

// runAnalysis dispatches an analysis and waits for it to settle.
func runAnalysis(ctx context.Context, sess *session.Session) (scan.Snapshot, error) {
	done, err := sess.Scan.Analyze(ctx)
	if err != nil {
		return scan.Snapshot{}, err
	}
	select {
	case snap, ok := <-done:
		if !ok {
			return sess.Scan.Snapshot(), fmt.Errorf("analysis was superseded")
		}
		if snap.Error != nil {
			return snap, snap.Error
		}
		return snap, nil
	case <-ctx.Done():
		sess.Scan.Reset()
		return scan.Snapshot{}, ctx.Err()
	}
}

type analysisOutput struct {
	Result *models.AnalysisResult `json:"result" yaml:"result"`
	Band   scoring.Band           `json:"band" yaml:"band"`
	Counts map[models.Group]int   `json:"counts" yaml:"counts"`
	Report *scoring.Report        `json:"report,omitempty" yaml:"report,omitempty"`
}

func printSnapshot(w io.Writer, snap scan.Snapshot, format string) error {
	out := analysisOutput{Result: snap.Result, Band: snap.Band, Counts: snap.Counts, Report: snap.Report}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		return yaml.NewEncoder(w).Encode(out)
	case "text":
		printText(w, out)
		return nil
	default:
		return fmt.Errorf("unknown format %q (text, json, or yaml)", format)
	}
}

func printText(w io.Writer, out analysisOutput) {
	r := out.Result
	fmt.Fprintf(w, "%s (%s)\n", r.ProductName, r.ProductCategory)
	fmt.Fprintf(w, "Score: %d/100 [%s]  %s\n", r.OverallScore, out.Band, r.Verdict)
	if out.Report != nil && !out.Report.Consistent {
		fmt.Fprintf(w, "Warning: provider score differs from contract arithmetic (%d)\n", out.Report.ComputedScore)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, r.Summary)

	groups := []struct {
		title string
		items []models.Component
	}{
		{"Negatives", r.Negatives},
		{"Positives", r.Positives},
		{"Questionable", r.Questionable},
	}
	for _, g := range groups {
		if len(g.items) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", g.title)
		for _, c := range g.items {
			fmt.Fprintf(w, "  %+4d  %-24s %-10s %s\n", c.Points(), c.Component, c.Value, strings.ReplaceAll(string(c.Display), "_", " "))
		}
	}
	fmt.Fprintf(w, "\nConfidence: identification %s, OCR %s (%s)\n",
		r.AnalysisConfidence.ProductIdentification, r.AnalysisConfidence.OCRAccuracy, r.AnalysisConfidence.DataSource)
}

// maskedStatus renders credential presence without the token.
func maskedStatus(st credentials.Status) string {
	if !st.Present {
		return fmt.Sprintf("%s: not set", st.Provider)
	}
	return fmt.Sprintf("%s: %s (from %s)", st.Provider, st.Masked, st.Source)
}
