package models

// Group identifies which of the three component lists a finding belongs to.
type Group string

const (
	GroupNegative     Group = "negative"
	GroupPositive     Group = "positive"
	GroupQuestionable Group = "questionable"
)

// Severity is the canonical severity tag of a component.
type Severity string

const (
	SeverityHigh            Severity = "high"
	SeverityModerate        Severity = "moderate"
	SeverityLow             Severity = "low"
	SeverityGood            Severity = "good"
	SeverityAmbiguous       Severity = "ambiguous"
	SeverityModerateConcern Severity = "moderate-concern"
)

// DisplayCategory is what a rendering collaborator should show for a component's severity.
type DisplayCategory string

const (
	DisplayHighRisk        DisplayCategory = "high_risk"
	DisplayModerateRisk    DisplayCategory = "moderate_risk"
	DisplayLowRisk         DisplayCategory = "low_risk"
	DisplayGoodBenefit     DisplayCategory = "good_benefit"
	DisplayModerateBenefit DisplayCategory = "moderate_benefit"
	DisplayConcernSource   DisplayCategory = "concern_source"
	DisplayAmbiguous       DisplayCategory = "ambiguous"
)

// AnalysisConfidence holds the provider's free-text confidence indicators
type AnalysisConfidence struct {
	ProductIdentification string `json:"productIdentification" yaml:"productidentification"`
	OCRAccuracy           string `json:"ocrAccuracy" yaml:"ocraccuracy"`
	DataSource            string `json:"dataSource" yaml:"datasource"`
}

// Component is one ingredient finding.
// Exactly one of Penalty (negatives, questionable) or Bonus (positives) is set.
type Component struct {
	Component   string   `json:"component" yaml:"component"`
	Value       string   `json:"value" yaml:"value"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Penalty     *int     `json:"penalty,omitempty" yaml:"penalty,omitempty"`
	Bonus       *int     `json:"bonus,omitempty" yaml:"bonus,omitempty"`
	Description string   `json:"description" yaml:"description"`

	// RawSeverity is the tag exactly as the provider sent it.
	RawSeverity string          `json:"rawSeverity,omitempty" yaml:"rawseverity,omitempty"`
	Display     DisplayCategory `json:"display" yaml:"display"`
	// Recognized is false when the tag was outside the group's set and Display fell back.
	Recognized bool `json:"recognized" yaml:"recognized"`
}

// Points returns the signed score contribution of the component.
func (c Component) Points() int {
	switch {
	case c.Bonus != nil:
		return *c.Bonus
	case c.Penalty != nil:
		return -*c.Penalty
	default:
		return 0
	}
}

// AnalysisResult is the validated output of one analysis attempt
type AnalysisResult struct {
	ProductName        string             `json:"productName" yaml:"productname"`
	ProductCategory    string             `json:"productCategory" yaml:"productcategory"`
	AnalysisConfidence AnalysisConfidence `json:"analysisConfidence" yaml:"analysisconfidence"`
	OverallScore       int                `json:"overallScore" yaml:"overallscore"`
	Verdict            string             `json:"verdict" yaml:"verdict"`
	Summary            string             `json:"summary" yaml:"summary"`
	Negatives          []Component        `json:"negatives" yaml:"negatives"`
	Positives          []Component        `json:"positives" yaml:"positives"`
	Questionable       []Component        `json:"questionable" yaml:"questionable"`
}

// Counts returns the number of findings per group.
func (r *AnalysisResult) Counts() map[Group]int {
	return map[Group]int{
		GroupNegative:     len(r.Negatives),
		GroupPositive:     len(r.Positives),
		GroupQuestionable: len(r.Questionable),
	}
}

// ProductCategories maps the category keys accepted as a provider hint to their labels
var ProductCategories = map[string]string{
	"food_beverage":      "Food & Beverage",
	"cosmetics_skincare": "Cosmetics & Skincare",
	"cleaning_supplies":  "Cleaning Supplies",
	"other":              "Other",
}

// CategoryLabel returns the human label for a category key, falling back to the key itself.
func CategoryLabel(key string) string {
	if label, ok := ProductCategories[key]; ok {
		return label
	}
	return key
}
