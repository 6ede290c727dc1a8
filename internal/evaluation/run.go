package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/radouane/scanner/internal/imageasset"
	"github.com/radouane/scanner/internal/models"
	"github.com/radouane/scanner/internal/providers"
	"github.com/radouane/scanner/internal/scanerr"
	"github.com/radouane/scanner/internal/scoring"
	"golang.org/x/sync/errgroup"
)

// Options controls an evaluation run.
type Options struct {
	Provider    string
	Model       string
	Credential  string
	Language    string
	Policy      scoring.Policy
	Concurrency int
	MaxBytes    int64
	Logger      *slog.Logger
}

// Run analyzes every item with at most opts.Concurrency requests in flight. Item failures are
// recorded on the item and never abort the run; only ctx cancellation stops it early.
func Run(ctx context.Context, items []Item, analyzer providers.Analyzer, opts Options) *Report {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	language := opts.Language
	if language == "" {
		language = providers.LanguageEnglish
	}

	report := &Report{
		Config: RunConfig{
			Provider:    opts.Provider,
			Model:       opts.Model,
			Language:    language,
			Strict:      opts.Policy == scoring.PolicyStrict,
			Concurrency: concurrency,
			Timestamp:   time.Now().Format("2006-01-02_15-04-05"),
		},
		Results: make([]ItemResult, len(items)),
	}

	validator := scoring.NewValidator(opts.Policy, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range items {
		g.Go(func() error {
			logger.Info("Processing item", "id", item.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(items)))
			report.Results[i] = evaluateItem(gctx, item, analyzer, validator, language, opts)
			return nil
		})
	}
	_ = g.Wait()

	report.Summary = summarize(report.Results)
	return report
}

func evaluateItem(ctx context.Context, item Item, analyzer providers.Analyzer, validator *scoring.Validator, language string, opts Options) ItemResult {
	start := time.Now()
	result := ItemResult{ID: item.ID, ExpectedName: item.ProductName}
	if item.ExpectedScore != nil {
		expected := int(*item.ExpectedScore)
		result.ExpectedScore = &expected
	}

	fail := func(err error) ItemResult {
		result.Error = err.Error()
		result.ErrorKind = scanerr.KindOf(err)
		result.Duration = time.Since(start)
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	data, err := os.ReadFile(item.ImagePath)
	if err != nil {
		return fail(scanerr.InvalidSource("failed to read image", err))
	}
	asset, err := imageasset.NewNormalizer(nil, opts.MaxBytes, opts.Logger).Normalize(imageasset.FromFile(item.ImagePath, "", data))
	if err != nil {
		return fail(err)
	}

	if item.Language != "" {
		language = item.Language
	}
	req := providers.Request{
		Image:      asset.Data(),
		MIMEType:   asset.MIMEType(),
		Language:   language,
		Credential: opts.Credential,
		Category:   models.CategoryLabel(item.Category),
	}

	raw, err := analyzer.Analyze(ctx, req)
	if err != nil {
		if scanerr.KindOf(err) == "" {
			err = scanerr.ProviderError(err)
		}
		return fail(err)
	}
	result.RawResponse = string(raw)

	parsed, rep, err := validator.Validate(raw)
	if err != nil {
		return fail(err)
	}

	result.Valid = true
	result.ProductName = parsed.ProductName
	result.ProviderScore = rep.ProviderScore
	result.ComputedScore = rep.ComputedScore
	result.ScoreDelta = rep.Delta()
	result.Consistent = rep.Consistent
	result.UnknownSeverities = rep.UnknownSeverities
	result.Counts = parsed.Counts()
	if item.ProductName != "" {
		similarity := NameSimilarity(item.ProductName, parsed.ProductName)
		result.NameSimilarity = &similarity
	}
	if result.ExpectedScore != nil {
		delta := parsed.OverallScore - *result.ExpectedScore
		result.ExpectedDelta = &delta
	}
	result.Duration = time.Since(start)
	return result
}
