package evalcmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/radouane/scanner/internal/evaluation"
	"github.com/spf13/cobra"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	var resultsPath string
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a saved evaluation report",
		Example: `  radouane eval report --results evals/gemini-2.5-flash-2026-01-02_03-04-05.yaml
  radouane eval report --results evals/run.yaml --format csv > run.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := evaluation.LoadYAML(resultsPath)
			if err != nil {
				return err
			}
			return executeReport(cmd.OutOrStdout(), report, format)
		},
	}

	cmd.Flags().StringVar(&resultsPath, "results", "", "Path to a YAML report written by eval run (required)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, or csv)")
	_ = cmd.MarkFlagRequired("results")

	return cmd
}

func executeReport(w io.Writer, report *evaluation.Report, format string) error {
	switch format {
	case "text":
		printTextReport(w, report)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "csv":
		return printCSVReport(w, report)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printTextReport(w io.Writer, report *evaluation.Report) {
	evaluation.PrintSummary(w, report)

	fmt.Fprintln(w, "\nDetailed Results:")
	for i, r := range report.Results {
		fmt.Fprintf(w, "\n[%d] %s\n", i+1, r.ID)
		if !r.Valid {
			fmt.Fprintf(w, "  Error (%s): %s\n", r.ErrorKind, r.Error)
			continue
		}
		fmt.Fprintf(w, "  Product:  %s\n", r.ProductName)
		fmt.Fprintf(w, "  Score:    %d (contract %d, delta %+d)\n", r.ProviderScore, r.ComputedScore, r.ScoreDelta)
		if r.NameSimilarity != nil {
			fmt.Fprintf(w, "  Name:     %.2f%% similar to %q\n", *r.NameSimilarity*100, r.ExpectedName)
		}
		if r.ExpectedDelta != nil {
			fmt.Fprintf(w, "  Expected: %d (delta %+d)\n", *r.ExpectedScore, *r.ExpectedDelta)
		}
		if len(r.UnknownSeverities) > 0 {
			fmt.Fprintf(w, "  Unknown severities: %v\n", r.UnknownSeverities)
		}
	}
}

func printCSVReport(w io.Writer, report *evaluation.Report) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "valid", "error_kind", "provider_score", "computed_score", "score_delta", "name_similarity", "expected_delta", "duration_ms"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range report.Results {
		similarity := ""
		if r.NameSimilarity != nil {
			similarity = strconv.FormatFloat(*r.NameSimilarity, 'f', 4, 64)
		}
		expected := ""
		if r.ExpectedDelta != nil {
			expected = strconv.Itoa(*r.ExpectedDelta)
		}
		record := []string{
			r.ID,
			strconv.FormatBool(r.Valid),
			string(r.ErrorKind),
			strconv.Itoa(r.ProviderScore),
			strconv.Itoa(r.ComputedScore),
			strconv.Itoa(r.ScoreDelta),
			similarity,
			expected,
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
