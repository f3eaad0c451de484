package analyzer

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// PageSpeedProvider returns Lighthouse-style metrics for a URL
type PageSpeedProvider interface {
	Run(ctx context.Context, target string) (*PSIMetrics, error)
}

// BrandScorer returns an externally computed brand score in [0,100]
type BrandScorer interface {
	BrandScore(ctx context.Context, target string) (int, error)
}

// Analyzer runs the fetch, extract, score and summarize steps for one URL
type Analyzer struct {
	fetcher   *Fetcher
	pageSpeed PageSpeedProvider
	brand     BrandScorer
}

// Option configures optional collaborators
type Option func(*Analyzer)

// WithPageSpeed lets a page-speed collaborator refine the performance score
func WithPageSpeed(p PageSpeedProvider) Option {
	return func(a *Analyzer) { a.pageSpeed = p }
}

// WithBrandScorer lets an external collaborator replace the brand heuristic
func WithBrandScorer(b BrandScorer) Option {
	return func(a *Analyzer) { a.brand = b }
}

// New creates an Analyzer around the given fetcher
func New(fetcher *Fetcher, opts ...Option) *Analyzer {
	a := &Analyzer{fetcher: fetcher}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze normalizes rawURL and builds an unsaved AnalysisRecord. ID and
// CreatedAt are left for the store to assign.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (*AnalysisRecord, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, &AppError{Kind: InvalidInput, Message: "url is required and must be a valid URL", Cause: err}
	}

	fetched, err := a.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	signals, text := ExtractDocument(fetched.Body, target)

	in := ScoreInput{
		Signals:        signals,
		ResponseTimeMs: fetched.Meta.ResponseTimeMs,
		TotalBytes:     fetched.Meta.TotalBytes,
		PSI:            a.runPageSpeed(ctx, target),
		BrandOverride:  a.externalBrand(ctx, target),
	}
	scores := Score(in)

	summary := ExtractKeywords(text)

	record := &AnalysisRecord{
		URL:       target,
		FetchMeta: fetched.Meta,
		Signals:   signals,
		Scores:    scores,
		PSI:       in.PSI,
		Keywords:  summary.Keywords,
		Issues:    BuildIssues(signals, fetched.Meta),
		KPIs:      BuildKPIs(scores.SEO, signals, summary.Unique),
	}

	log.Info().
		Str("url", target).
		Int("status", fetched.Meta.Status).
		Int64("response_ms", fetched.Meta.ResponseTimeMs).
		Int("overall", scores.Overall).
		Bool("psi", in.PSI != nil).
		Msg("analysis complete")

	return record, nil
}

func (a *Analyzer) runPageSpeed(ctx context.Context, target string) *PSIMetrics {
	if a.pageSpeed == nil {
		return nil
	}
	metrics, err := a.pageSpeed.Run(ctx, target)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("page speed lookup failed, using local heuristic")
		return nil
	}
	return metrics
}

func (a *Analyzer) externalBrand(ctx context.Context, target string) *int {
	if a.brand == nil {
		return nil
	}
	score, err := a.brand.BrandScore(ctx, target)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("url", target).Msg("brand score lookup failed, using local heuristic")
		}
		return nil
	}
	return &score
}
