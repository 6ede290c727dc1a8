package evaluation

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/scanerr"
	"gopkg.in/yaml.v3"
)

// RunConfig records how a run was configured.
type RunConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	Strict      bool   `yaml:"strict"`
	Concurrency int    `yaml:"concurrency"`
	DatasetPath string `yaml:"datasetpath,omitempty"`
	Timestamp   string `yaml:"timestamp"`
}

// ItemResult is the outcome for one item.
type ItemResult struct {
	ID                string               `yaml:"id"`
	Valid             bool                 `yaml:"valid"`
	ErrorKind         scanerr.Kind         `yaml:"errorkind,omitempty"`
	Error             string               `yaml:"error,omitempty"`
	ProductName       string               `yaml:"productname,omitempty"`
	ExpectedName      string               `yaml:"expectedname,omitempty"`
	NameSimilarity    *float64             `yaml:"namesimilarity,omitempty"`
	ProviderScore     int                  `yaml:"providerscore"`
	ComputedScore     int                  `yaml:"computedscore"`
	ScoreDelta        int                  `yaml:"scoredelta"`
	Consistent        bool                 `yaml:"consistent"`
	ExpectedScore     *int                 `yaml:"expectedscore,omitempty"`
	ExpectedDelta     *int                 `yaml:"expecteddelta,omitempty"`
	UnknownSeverities []string             `yaml:"unknownseverities,omitempty"`
	Counts            map[models.Group]int `yaml:"counts,omitempty"`
	Duration          time.Duration        `yaml:"duration"`
	RawResponse       string               `yaml:"rawresponse,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	Total              int                  `yaml:"total"`
	Valid              int                  `yaml:"valid"`
	Failed             int                  `yaml:"failed"`
	ConformanceRate    float64              `yaml:"conformancerate"`
	ConsistentRate     float64              `yaml:"consistentrate"`
	MeanAbsScoreDelta  float64              `yaml:"meanabsscoredelta"`
	MaxAbsScoreDelta   int                  `yaml:"maxabsscoredelta"`
	MeanNameSimilarity float64              `yaml:"meannamesimilarity"`
	MeanExpectedDelta  float64              `yaml:"meanexpecteddelta"`
	FailuresByKind     map[scanerr.Kind]int `yaml:"failuresbykind,omitempty"`
	AverageDuration    time.Duration        `yaml:"averageduration"`
}

// Report is the full result of a run.
type Report struct {
	Config  RunConfig    `yaml:"config"`
	Summary Summary      `yaml:"summary"`
	Results []ItemResult `yaml:"results"`
}

// NameSimilarity is 1 minus the edit distance over the longer name, compared case-insensitively.
func NameSimilarity(expected, got string) float64 {
	a := strings.ToLower(strings.TrimSpace(expected))
	b := strings.ToLower(strings.TrimSpace(got))
	if a == b {
		return 1.0
	}
	maxLen := math.Max(float64(utf8.RuneCountInString(a)), float64(utf8.RuneCountInString(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.Distance(a, b))/maxLen
}

func summarize(results []ItemResult) Summary {
	s := Summary{Total: len(results), FailuresByKind: make(map[scanerr.Kind]int)}

	var (
		consistent, similarities, expected int
		deltaSum, similaritySum            float64
		expectedSum                        float64
		durations                          time.Duration
	)
	for _, r := range results {
		durations += r.Duration
		if !r.Valid {
			s.Failed++
			kind := r.ErrorKind
			if kind == "" {
				kind = "other"
			}
			s.FailuresByKind[kind]++
			continue
		}
		s.Valid++
		if r.Consistent {
			consistent++
		}
		abs := r.ScoreDelta
		if abs < 0 {
			abs = -abs
		}
		deltaSum += float64(abs)
		if abs > s.MaxAbsScoreDelta {
			s.MaxAbsScoreDelta = abs
		}
		if r.NameSimilarity != nil {
			similarities++
			similaritySum += *r.NameSimilarity
		}
		if r.ExpectedDelta != nil {
			expected++
			d := *r.ExpectedDelta
			if d < 0 {
				d = -d
			}
			expectedSum += float64(d)
		}
	}

	if s.Total > 0 {
		s.ConformanceRate = float64(s.Valid) / float64(s.Total)
		s.AverageDuration = durations / time.Duration(s.Total)
	}
	if s.Valid > 0 {
		s.ConsistentRate = float64(consistent) / float64(s.Valid)
		s.MeanAbsScoreDelta = deltaSum / float64(s.Valid)
	}
	if similarities > 0 {
		s.MeanNameSimilarity = similaritySum / float64(similarities)
	}
	if expected > 0 {
		s.MeanExpectedDelta = expectedSum / float64(expected)
	}
	if len(s.FailuresByKind) == 0 {
		s.FailuresByKind = nil
	}
	return s
}

// SaveYAML writes the report to dir as <model>-<timestamp>.yaml and returns the path.
func SaveYAML(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create evals directory: %w", err)
	}

	name := report.Config.Model
	if name == "" {
		name = report.Config.Provider
	}
	name = strings.NewReplacer("/", "_", ":", "_").Replace(name)
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", name, report.Config.Timestamp))

	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return filename, nil
}

// LoadYAML reads a report written by SaveYAML.
func LoadYAML(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// PrintSummary writes a human-readable summary.
func PrintSummary(w io.Writer, report *Report) {
	s := report.Summary
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Evaluation Summary (%s %s)\n", report.Config.Provider, report.Config.Model)
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Total Items:          %d\n", s.Total)
	fmt.Fprintf(w, "Contract Conformance: %.2f%% (%d/%d)\n", s.ConformanceRate*100, s.Valid, s.Total)
	fmt.Fprintf(w, "Score Consistency:    %.2f%%\n", s.ConsistentRate*100)
	fmt.Fprintf(w, "Mean |Score Delta|:   %.2f (max %d)\n", s.MeanAbsScoreDelta, s.MaxAbsScoreDelta)
	fmt.Fprintf(w, "Name Similarity:      %.2f%%\n", s.MeanNameSimilarity*100)
	fmt.Fprintf(w, "Average Duration:     %s\n", s.AverageDuration.Round(time.Millisecond))

	if len(s.FailuresByKind) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failures:")
		kinds := make([]string, 0, len(s.FailuresByKind))
		for kind := range s.FailuresByKind {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, s.FailuresByKind[scanerr.Kind(kind)])
		}
	}
	fmt.Fprintln(w, "========================================")
}
