package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/scanerr"
)

// Policy decides what happens when the provider's score disagrees with the contract arithmetic.
type Policy int

const (
	// PolicyWarn accepts the provider score and logs the mismatch.
	PolicyWarn Policy = iota
	// PolicyStrict rejects the response as invalid.
	PolicyStrict
)

// Report describes the soft findings of a successful validation.
type Report struct {
	ProviderScore     int      `json:"providerScore" yaml:"providerscore"`
	ComputedScore     int      `json:"computedScore" yaml:"computedscore"`
	Consistent        bool     `json:"consistent" yaml:"consistent"`
	UnknownSeverities []string `json:"unknownSeverities,omitempty" yaml:"unknownseverities,omitempty"`
}

// Delta is the provider score minus the computed score.
func (r *Report) Delta() int {
	return r.ProviderScore - r.ComputedScore
}

// Validator checks raw provider output against the response schema and scoring contract.
type Validator struct {
	Policy Policy
	logger *slog.Logger
}

// NewValidator returns a validator. A nil logger uses slog.Default().
func NewValidator(policy Policy, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{Policy: policy, logger: logger}
}

// Validate is a convenience wrapper around a default-logger Validator.
func Validate(raw []byte, policy Policy) (*models.AnalysisResult, *Report, error) {
	return NewValidator(policy, nil).Validate(raw)
}

type wireConfidence struct {
	ProductIdentification *string `json:"productIdentification"`
	OCRAccuracy           *string `json:"ocrAccuracy"`
	DataSource            *string `json:"dataSource"`
}

type wireComponent struct {
	Component   *string         `json:"component"`
	Value       *string         `json:"value"`
	Severity    *string         `json:"severity"`
	Penalty     json.RawMessage `json:"penalty"`
	Bonus       json.RawMessage `json:"bonus"`
	Description *string         `json:"description"`
}

type wireResult struct {
	ProductName        *string          `json:"productName"`
	ProductCategory    *string          `json:"productCategory"`
	AnalysisConfidence *wireConfidence  `json:"analysisConfidence"`
	OverallScore       json.RawMessage  `json:"overallScore"`
	Verdict            *string          `json:"verdict"`
	Summary            *string          `json:"summary"`
	Negatives          *[]wireComponent `json:"negatives"`
	Positives          *[]wireComponent `json:"positives"`
	Questionable       *[]wireComponent `json:"questionable"`
}

// Validate parses and checks a provider response. Any schema violation is returned as a
// scanerr InvalidResponse; unknown severities and (under PolicyWarn) score mismatches are
// reported but do not fail the response.
func (v *Validator) Validate(raw []byte) (*models.AnalysisResult, *Report, error) {
	body := ExtractJSON(string(raw))
	if body == "" {
		return nil, nil, scanerr.InvalidResponse("provider returned an empty response", nil)
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, nil, scanerr.InvalidResponse("provider response is not valid JSON", err)
	}

	var missing []string
	requireString := func(name string, s *string) string {
		if s == nil {
			missing = append(missing, name)
			return ""
		}
		return *s
	}

	result := &models.AnalysisResult{
		ProductName:     requireString("productName", wire.ProductName),
		ProductCategory: requireString("productCategory", wire.ProductCategory),
		Verdict:         requireString("verdict", wire.Verdict),
		Summary:         requireString("summary", wire.Summary),
	}
	if wire.AnalysisConfidence == nil {
		missing = append(missing, "analysisConfidence")
	} else {
		result.AnalysisConfidence = models.AnalysisConfidence{
			ProductIdentification: requireString("analysisConfidence.productIdentification", wire.AnalysisConfidence.ProductIdentification),
			OCRAccuracy:           requireString("analysisConfidence.ocrAccuracy", wire.AnalysisConfidence.OCRAccuracy),
			DataSource:            requireString("analysisConfidence.dataSource", wire.AnalysisConfidence.DataSource),
		}
	}
	if isAbsent(wire.OverallScore) {
		missing = append(missing, "overallScore")
	}
	if wire.Negatives == nil {
		missing = append(missing, "negatives")
	}
	if wire.Positives == nil {
		missing = append(missing, "positives")
	}
	if wire.Questionable == nil {
		missing = append(missing, "questionable")
	}
	if len(missing) > 0 {
		return nil, nil, scanerr.InvalidResponse(fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")), nil)
	}

	score, err := parseInteger(wire.OverallScore)
	if err != nil {
		return nil, nil, scanerr.InvalidResponse("overallScore is not an integer", err)
	}
	if score < MinScore || score > MaxScore {
		return nil, nil, scanerr.InvalidResponse(fmt.Sprintf("overallScore %d is outside [%d, %d]", score, MinScore, MaxScore), nil)
	}
	result.OverallScore = score

	report := &Report{ProviderScore: score}

	groups := []struct {
		group models.Group
		wire  []wireComponent
		dest  *[]models.Component
	}{
		{models.GroupNegative, *wire.Negatives, &result.Negatives},
		{models.GroupPositive, *wire.Positives, &result.Positives},
		{models.GroupQuestionable, *wire.Questionable, &result.Questionable},
	}
	for _, g := range groups {
		components := make([]models.Component, 0, len(g.wire))
		for i, wc := range g.wire {
			c, err := convertComponent(g.group, wc)
			if err != nil {
				return nil, nil, scanerr.InvalidResponse(fmt.Sprintf("%s[%d]: %s", g.group, i, err.Error()), err)
			}
			if !c.Recognized {
				report.UnknownSeverities = append(report.UnknownSeverities, fmt.Sprintf("%s:%s", g.group, c.RawSeverity))
			}
			components = append(components, c)
		}
		*g.dest = components
	}

	report.ComputedScore = ComputeScore(result)
	report.Consistent = report.ComputedScore == report.ProviderScore

	if len(report.UnknownSeverities) > 0 {
		v.logger.Warn("Unrecognized severity tags mapped to ambiguous", "tags", report.UnknownSeverities)
	}
	if !report.Consistent {
		if v.Policy == PolicyStrict {
			return nil, nil, scanerr.InvalidResponse(fmt.Sprintf("overallScore %d does not match computed score %d", report.ProviderScore, report.ComputedScore), nil)
		}
		v.logger.Warn("Provider score does not match scoring contract",
			"provider_score", report.ProviderScore,
			"computed_score", report.ComputedScore,
			"delta", report.Delta())
	}

	return result, report, nil
}

func convertComponent(group models.Group, wc wireComponent) (models.Component, error) {
	var c models.Component
	if wc.Component == nil || strings.TrimSpace(*wc.Component) == "" {
		return c, fmt.Errorf("component name is required")
	}
	if wc.Severity == nil {
		return c, fmt.Errorf("severity is required")
	}
	if wc.Description == nil {
		return c, fmt.Errorf("description is required")
	}

	c.Component = *wc.Component
	c.Description = *wc.Description
	if wc.Value != nil {
		c.Value = *wc.Value
	}
	c.RawSeverity = *wc.Severity
	c.Severity, c.Display, c.Recognized = Classify(group, *wc.Severity)

	hasPenalty, hasBonus := !isAbsent(wc.Penalty), !isAbsent(wc.Bonus)
	if group == models.GroupPositive {
		if !hasBonus || hasPenalty {
			return c, fmt.Errorf("positive components carry exactly one bonus and no penalty")
		}
		bonus, err := parseNonNegative(wc.Bonus)
		if err != nil {
			return c, fmt.Errorf("bonus: %w", err)
		}
		c.Bonus = &bonus
		return c, nil
	}

	if !hasPenalty || hasBonus {
		return c, fmt.Errorf("%s components carry exactly one penalty and no bonus", group)
	}
	penalty, err := parseNonNegative(wc.Penalty)
	if err != nil {
		return c, fmt.Errorf("penalty: %w", err)
	}
	c.Penalty = &penalty
	return c, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseInteger accepts JSON numbers with an integral value (72 or 72.0); strings are rejected.
func parseInteger(raw json.RawMessage) (int, error) {
	text := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(text, `"`) {
		return 0, fmt.Errorf("expected a number, got string %s", text)
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return int(n), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("expected a number, got %s", text)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected an integer, got %s", text)
	}
	if math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("integer out of range: %s", text)
	}
	return int(f), nil
}

// parseNonNegative reads a penalty or bonus. No single adjustment can move the score further
// than the whole scale.
func parseNonNegative(raw json.RawMessage) (int, error) {
	n, err := parseInteger(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must be non-negative, got %d", n)
	}
	if n > MaxScore {
		return 0, fmt.Errorf("must be at most %d, got %d", MaxScore, n)
	}
	return n, nil
}

// ExtractJSON strips markdown code fences and any prose around the outermost JSON object.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "{") {
		return response
	}
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end < start {
		return response
	}
	return response[start : end+1]
}
