// Package scoring holds the scoring contract every analysis provider must honour and the
// validator that enforces it before a result is trusted.
//
// The contract: overallScore = 100 - sum(penalties over negatives and questionable)
// + sum(bonuses over positives), clamped to [0, 100].
package scoring

import (
	"strings"

	"github.com/radouane/scanner/internal/models"
)

const (
	BaseScore = 100
	MinScore  = 0
	MaxScore  = 100
)

// ComputeScore applies the contract arithmetic to a result's components.
func ComputeScore(r *models.AnalysisResult) int {
	score := BaseScore
	for _, group := range [][]models.Component{r.Negatives, r.Questionable, r.Positives} {
		for _, c := range group {
			score += c.Points()
		}
	}
	return Clamp(score)
}

// Clamp bounds a score to [MinScore, MaxScore].
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Band is a coarse rating of a score for display.
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandFair      Band = "fair"
	BandPoor      Band = "poor"
)

// BandFor returns the display band for a score.
func BandFor(score int) Band {
	switch {
	case score >= 80:
		return BandExcellent
	case score >= 60:
		return BandGood
	case score >= 40:
		return BandFair
	default:
		return BandPoor
	}
}

type severityRule struct {
	severity models.Severity
	display  models.DisplayCategory
}

// severityTable lists the accepted tags per group, keyed by normalized tag.
// "sever" and "severe/high" are spellings providers have been observed to emit for high.
var severityTable = map[models.Group]map[string]severityRule{
	models.GroupNegative: {
		"high":        {models.SeverityHigh, models.DisplayHighRisk},
		"severe":      {models.SeverityHigh, models.DisplayHighRisk},
		"sever":       {models.SeverityHigh, models.DisplayHighRisk},
		"severe/high": {models.SeverityHigh, models.DisplayHighRisk},
		"moderate":    {models.SeverityModerate, models.DisplayModerateRisk},
		"low":         {models.SeverityLow, models.DisplayLowRisk},
	},
	models.GroupPositive: {
		"good":     {models.SeverityGood, models.DisplayGoodBenefit},
		"moderate": {models.SeverityModerate, models.DisplayModerateBenefit},
	},
	models.GroupQuestionable: {
		"ambiguous":        {models.SeverityAmbiguous, models.DisplayAmbiguous},
		"moderate-concern": {models.SeverityModerateConcern, models.DisplayConcernSource},
	},
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.ReplaceAll(tag, "_", "-")
	return strings.Join(strings.Fields(tag), "-")
}

// Classify maps a provider severity tag to its canonical severity and display category.
// Unrecognized tags fall back to ambiguous with ok == false.
func Classify(group models.Group, tag string) (models.Severity, models.DisplayCategory, bool) {
	if rule, ok := severityTable[group][normalizeTag(tag)]; ok {
		return rule.severity, rule.display, true
	}
	return models.SeverityAmbiguous, models.DisplayAmbiguous, false
}

// AllowedSeverities returns the canonical tags for a group, used in provider prompts and schemas.
func AllowedSeverities(group models.Group) []string {
	switch group {
	case models.GroupNegative:
		return []string{string(models.SeverityHigh), string(models.SeverityModerate), string(models.SeverityLow)}
	case models.GroupPositive:
		return []string{string(models.SeverityGood), string(models.SeverityModerate)}
	case models.GroupQuestionable:
		return []string{string(models.SeverityAmbiguous), string(models.SeverityModerateConcern)}
	}
	return nil
}
