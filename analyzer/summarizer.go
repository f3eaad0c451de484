package analyzer

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const maxKeywords = 50

var stopwords = map[string]bool{
	"the": true, "and": true, "a": true, "to": true, "of": true, "in": true,
	"is": true, "it": true, "you": true, "that": true, "for": true, "on": true,
	"with": true, "as": true, "are": true, "this": true, "be": true, "or": true,
	"by": true, "an": true, "from": true, "at": true, "we": true, "have": true,
}

// KeywordSummary is the top keyword list plus the number of distinct terms seen
type KeywordSummary struct {
	Keywords []Keyword
	Unique   int
}

// ExtractKeywords builds a term-frequency list from visible page text.
// Rank and Change are placeholders: they are derived from list position,
// not from any historical comparison.
func ExtractKeywords(text string) KeywordSummary {
	normalized := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, text)

	counts := make(map[string]int)
	var order []string
	for _, token := range strings.Fields(normalized) {
		if len(token) < 3 || stopwords[token] {
			continue
		}
		if counts[token] == 0 {
			order = append(order, token)
		}
		counts[token]++
	}

	// stable sort keeps first-seen order among equal counts
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	limit := len(order)
	if limit > maxKeywords {
		limit = maxKeywords
	}
	keywords := make([]Keyword, 0, limit)
	for idx, term := range order[:limit] {
		keywords = append(keywords, Keyword{
			Keyword: term,
			Count:   counts[term],
			Rank:    max(1, 100-idx),
			Change:  (idx % 5) - 2,
		})
	}

	return KeywordSummary{Keywords: keywords, Unique: len(counts)}
}

// BuildIssues flags on-page deficiencies. Link validation is not performed,
// so broken_internal_links is always zero.
func BuildIssues(s Signals, meta FetchMeta) Issues {
	issues := Issues{
		MissingAltTags: max(0, s.ImagesTotal-s.ImagesWithAlt),
	}
	if s.MetaDescription == nil {
		issues.MissingMetaDescriptions = 1
	}
	if meta.ResponseTimeMs > 1000 {
		issues.SlowLoadingPages = 1
	}
	return issues
}

// BuildKPIs derives the synthetic KPI figures shown on the dashboard
func BuildKPIs(seo int, s Signals, uniqueKeywords int) KPIs {
	traffic := math.Round(float64(s.WordCount)/100 + float64(uniqueKeywords)*1.2 + float64(seo)/3)
	return KPIs{
		SEOScore:        seo,
		OrganicTraffic:  max(0, int(traffic)),
		KeywordRankings: uniqueKeywords,
		Backlinks:       len(s.OutboundHosts),
	}
}
