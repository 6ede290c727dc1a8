package evalcmd

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/radouane/scanner/internal/evaluation"
	"github.com/radouane/scanner/internal/scanerr"
)

func sampleReport() *evaluation.Report {
	sim := 0.8
	return &evaluation.Report{
		Config: evaluation.RunConfig{Provider: "gemini", Model: "gemini-2.5-flash"},
		Summary: evaluation.Summary{
			Total: 2, Valid: 1, Failed: 1, ConformanceRate: 0.5,
			FailuresByKind: map[scanerr.Kind]int{scanerr.KindInvalidResponse: 1},
		},
		Results: []evaluation.ItemResult{
			{ID: "a", Valid: true, ProductName: "Oat Bar", ExpectedName: "Oat Bars", ProviderScore: 70, ComputedScore: 68, ScoreDelta: 2, NameSimilarity: &sim},
			{ID: "b", ErrorKind: scanerr.KindInvalidResponse, Error: "overallScore out of range"},
		},
	}
}

func TestExecuteReportFormats(t *testing.T) {
	report := sampleReport()

	var text bytes.Buffer
	if err := executeReport(&text, report, "text"); err != nil {
		t.Fatalf("text: %v", err)
	}
	for _, want := range []string{"Contract Conformance: 50.00%", "delta +2", "invalid_response"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("Expected text report to contain %q", want)
		}
	}

	var out bytes.Buffer
	if err := executeReport(&out, report, "csv"); err != nil {
		t.Fatalf("csv: %v", err)
	}
	rows, err := csv.NewReader(&out).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d", len(rows))
	}
	if rows[1][6] != "0.8000" || rows[2][2] != "invalid_response" {
		t.Errorf("Unexpected csv rows %v", rows[1:])
	}

	if err := executeReport(&out, report, "xml"); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestExecuteInspect(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(present, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	items := []evaluation.Item{
		{ID: "a", ImagePath: present, ProductName: "Oat Bar"},
		{ID: "b", ImagePath: filepath.Join(dir, "b.jpg")},
	}

	var out bytes.Buffer
	if err := executeInspect(strings.NewReader("\n"), &out, items, true); err != nil {
		t.Fatalf("executeInspect: %v", err)
	}
	if !strings.Contains(out.String(), "2 items, 1 missing images") {
		t.Errorf("Unexpected output %q", out.String())
	}
}
