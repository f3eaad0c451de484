package analyzer

import "math"

// ScoreInput is everything the scorer looks at. PSI and BrandOverride are
// set only when the matching collaborator answered.
type ScoreInput struct {
	Signals        Signals
	ResponseTimeMs int64
	TotalBytes     int64
	PSI            *PSIMetrics
	BrandOverride  *int
}

// Score computes the four sub-scores and the overall score
func Score(in ScoreInput) Scores {
	scores := Scores{
		SEO:         clampScore(seoScore(in.Signals)),
		Brand:       clampScore(brandScore(in.Signals, in.BrandOverride)),
		Social:      clampScore(socialScore(in.Signals)),
		Performance: clampScore(performanceScore(in.ResponseTimeMs, in.TotalBytes, in.PSI)),
	}
	scores.Overall = OverallScore(scores.SEO, scores.Brand, scores.Social, scores.Performance)
	return scores
}

// OverallScore is the rounded mean of the four sub-scores
func OverallScore(seo, brand, social, performance int) int {
	return clampScore(float64(seo+brand+social+performance) / 4)
}

// PerformanceScore is the performance sub-score on its own, as used by
// the /performance endpoint when no page-speed report is available.
func PerformanceScore(responseTimeMs, totalBytes int64, psi *PSIMetrics) int {
	return clampScore(performanceScore(responseTimeMs, totalBytes, psi))
}

func seoScore(s Signals) float64 {
	score := 0.0
	if s.Title != nil {
		score += 10
		if n := len([]rune(*s.Title)); n >= 10 && n <= 60 {
			score += 10
		}
	}
	if s.MetaDescription != nil {
		score += 10
		if n := len([]rune(*s.MetaDescription)); n >= 50 && n <= 160 {
			score += 10
		}
	}
	if s.H1Count > 0 {
		score += 10
	}

	altRatio := 1.0
	if s.ImagesTotal > 0 {
		altRatio = float64(s.ImagesWithAlt) / float64(s.ImagesTotal)
	}
	score += altRatio * 10

	if s.HasViewport {
		score += 10
	}
	if s.HasCanonical {
		score += 10
	}
	score += math.Min(1, float64(s.WordCount)/3000) * 20
	return score
}

func brandScore(s Signals, override *int) float64 {
	if override != nil {
		return float64(*override)
	}
	if s.OGTitle != nil || s.OGImage != nil {
		return 70
	}
	return 50
}

func socialScore(s Signals) float64 {
	if s.TwitterCard != nil || s.OGTitle != nil {
		return 70
	}
	return 50
}

func performanceScore(responseTimeMs, totalBytes int64, psi *PSIMetrics) float64 {
	var perf float64
	switch {
	case responseTimeMs < 200:
		perf = 90
	case responseTimeMs < 500:
		perf = 75
	case responseTimeMs < 1000:
		perf = 60
	default:
		perf = 40
	}
	if totalBytes > 500000 {
		perf -= 10
	}

	if psi == nil {
		return perf
	}
	if psi.PerformanceScore > 0 {
		return float64(psi.PerformanceScore)
	}
	if psi.LCP != nil {
		switch lcp := *psi.LCP; {
		case lcp < 2500:
			perf = math.Max(perf, 85)
		case lcp < 4000:
			perf = math.Max(perf, 70)
		default:
			perf = math.Max(perf, 50)
		}
	}
	return perf
}

func clampScore(v float64) int {
	return int(math.Max(0, math.Min(math.Round(v), 100)))
}
