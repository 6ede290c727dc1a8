package providers

import (
	"fmt"
	"strings"

	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/scoring"
)

// Supported prompt languages.
const (
	LanguageEnglish = "en"
	LanguageArabic  = "ar"
)

// Languages lists the accepted language tags.
var Languages = []string{LanguageEnglish, LanguageArabic}

// SupportedLanguage reports whether lang has a prompt variant.
func SupportedLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

const scoringRules = `Scoring formula (mandatory):
score = 100 - sum(penalties of negatives and questionable) + sum(bonuses of positives), clamped to 0..100.
overallScore MUST equal this value.

Penalties (negatives): trans fats 40, high-fructose corn syrup 30, artificial sweeteners 25,
formaldehyde releasers 25, nitrates/nitrites 20, parabens 20, artificial colours 15, phthalates 15,
sulfates (SLS) 10, sugar > 20g 20, sugar > 15g 15, sodium > 600mg 10, saturated fat > 10g 10.
Penalties (questionable): sugar splitting 15, natural/artificial flavours 10, fragrance 10,
hydrolyzed vegetable protein 10.
Bonuses (positives): fibre > 5g 10, short ingredient list (< 5) 10, protein > 15g 5,
certified organic 5, whole food as first ingredient 5.`

const outputContract = `Output a single JSON object and nothing else:
{
  "productName": string,
  "productCategory": string,
  "analysisConfidence": {"productIdentification": string, "ocrAccuracy": string, "dataSource": string},
  "overallScore": integer 0..100,
  "verdict": string,
  "summary": string (one short sentence),
  "negatives":    [{"component", "value", "severity": %s, "penalty": integer >= 0, "description"}],
  "positives":    [{"component", "value", "severity": %s, "bonus": integer >= 0, "description"}],
  "questionable": [{"component", "value", "severity": %s, "penalty": integer >= 0, "description"}]
}
List every relevant component in all three groups, not one example per group.`

const systemPromptEN = `You are an ingredient analysis system. Examine the product label in the image and
produce an evidence-based assessment of its components, in English.

Principles:
- Base every assessment on recognised scientific bodies (FDA, EFSA and similar).
- Treat a component without clear scientific consensus on its safety as a risk.
- Look for misleading patterns: sugar splitting, vague ingredients ("natural flavours",
  "fragrance") and hazardous chemicals.
- Use the specific brand name when you identify the product with more than 80% confidence,
  otherwise a generic product description.
- This analysis is informational only and is not medical advice.

`

const systemPromptAR = `أنت نظام لتحليل المكونات. افحص ملصق المنتج في الصورة وقدّم تقييمًا علميًا لمكوناته.

المبادئ:
- اعتمد في كل تقييم على الهيئات العلمية المعترف بها (FDA و EFSA وما يماثلها).
- عامل أي مكون يفتقر إلى إجماع علمي واضح على سلامته كمخاطرة.
- ابحث عن الأنماط المضللة مثل تجزئة السكر والمكونات الغامضة والمواد الكيميائية الخطرة.
- استخدم الاسم التجاري عندما تتجاوز ثقة التعرف على المنتج 80%، وإلا فاستخدم وصفًا عامًا.
- هذا التحليل لأغراض إعلامية فقط وليس نصيحة طبية.

قاعدة اللغة: جميع القيم النصية يجب أن تكون باللغة العربية، أما أسماء الحقول وقيم severity فتبقى بالإنجليزية.

`

// SystemPrompt returns the system instruction for lang. Unknown languages use English.
func SystemPrompt(lang string) string {
	base := systemPromptEN
	if lang == LanguageArabic {
		base = systemPromptAR
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString(scoringRules)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, outputContract,
		severityList(models.GroupNegative),
		severityList(models.GroupPositive),
		severityList(models.GroupQuestionable),
	)
	return b.String()
}

// UserPrompt returns the per-request instruction accompanying the image.
func UserPrompt(lang, category string) string {
	if lang == LanguageArabic {
		if category != "" {
			return fmt.Sprintf("الرجاء تحليل صورة مكونات المنتج هذه. فئة المنتج: %s.", category)
		}
		return "الرجاء تحليل صورة مكونات المنتج هذه."
	}
	if category != "" {
		return fmt.Sprintf("Please analyze this product ingredients image. Product category: %s.", category)
	}
	return "Please analyze this product ingredients image."
}

func severityList(group models.Group) string {
	return strings.Join(scoring.AllowedSeverities(group), "|")
}
