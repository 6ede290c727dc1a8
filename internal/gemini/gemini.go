package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/providers"
	"github.com/radouane/scanner/internal/scoring"
	"google.golang.org/api/option"
)

const (
	Name         = "gemini"
	DefaultModel = "gemini-2.5-flash"
)

func init() {
	providers.Register(providers.Descriptor{
		Name:          Name,
		DefaultModel:  DefaultModel,
		CredentialEnv: "GEMINI_API_KEY",
		New:           func(cfg providers.Config) providers.Analyzer { return New(cfg) },
	})
}

// Gemini is a provider for Google Gemini
type Gemini struct {
	config providers.Config
	opts   []option.ClientOption
}

// New returns a new Gemini provider. Extra client options are appended after the API key.
func New(cfg providers.Config, opts ...option.ClientOption) *Gemini {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	return &Gemini{config: cfg, opts: opts}
}

// Analyze sends the label image with the system instruction and response schema, returning
// the raw JSON text of the first candidate.
func (g *Gemini) Analyze(ctx context.Context, req providers.Request) ([]byte, error) {
	if req.Credential == "" {
		return nil, fmt.Errorf("gemini API key not provided")
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(req.Credential)}, g.opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.config.Model)
	configureModel(model, g.config, req.Language)

	resp, err := model.GenerateContent(ctx, requestParts(req)...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("empty content returned from Gemini")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("unexpected response format from Gemini")
	}

	return []byte(text.String()), nil
}

func configureModel(model *genai.GenerativeModel, cfg providers.Config, lang string) {
	model.SetTemperature(float32(cfg.Temperature))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(providers.SystemPrompt(lang))},
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = ResponseSchema()
}

func requestParts(req providers.Request) []genai.Part {
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return []genai.Part{
		genai.Blob{MIMEType: mimeType, Data: req.Image},
		genai.Text(providers.UserPrompt(req.Language, req.Category)),
	}
}

// ResponseSchema is the structured-output schema mirroring the scoring contract.
func ResponseSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	component := func(group models.Group, amountField, amountDesc string) *genai.Schema {
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"component":   str("Name of the ingredient."),
				"value":       str("Value or amount if available, otherwise an empty string."),
				"severity":    {Type: genai.TypeString, Enum: scoring.AllowedSeverities(group)},
				amountField:   {Type: genai.TypeInteger, Description: amountDesc},
				"description": str("Why this ingredient belongs to the group."),
			},
			Required: []string{"component", "value", "severity", amountField, "description"},
		}
	}
	list := func(desc string, item *genai.Schema) *genai.Schema {
		return &genai.Schema{Type: genai.TypeArray, Description: desc, Items: item}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"productName":     str("The name of the product identified from the image."),
			"productCategory": str("The category of the product."),
			"analysisConfidence": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"productIdentification": str("Confidence in identifying the product."),
					"ocrAccuracy":           str("Accuracy of reading the ingredients list."),
					"dataSource":            str("Primary source of information used."),
				},
				Required: []string{"productIdentification", "ocrAccuracy", "dataSource"},
			},
			"overallScore": {Type: genai.TypeInteger, Description: "Score from 0 to 100 computed with the scoring formula."},
			"verdict":      str("A short, conclusive verdict about the product."),
			"summary":      str("One short sentence summarising the most important finding."),
			"negatives":    list("Harmful ingredients found.", component(models.GroupNegative, "penalty", "Score penalty, non-negative.")),
			"positives":    list("Beneficial ingredients found.", component(models.GroupPositive, "bonus", "Score bonus, non-negative.")),
			"questionable": list("Ambiguous or deceptive ingredients found.", component(models.GroupQuestionable, "penalty", "Score penalty, non-negative.")),
		},
		Required: []string{
			"productName", "productCategory", "analysisConfidence", "overallScore",
			"verdict", "summary", "negatives", "positives", "questionable",
		},
	}
}
