package analyzer

import "time"

// AnalysisRecord is the complete, immutable result of one /analyze call
type AnalysisRecord struct {
	ID        string    `json:"id" bson:"_id"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	URL       string    `json:"url" bson:"url"`

	FetchMeta `bson:",inline"`
	Signals   `bson:",inline"`
	Scores    `bson:",inline"`

	PSI      *PSIMetrics `json:"psi" bson:"psi,omitempty"`
	Keywords []Keyword   `json:"keywords" bson:"keywords"`
	Issues   Issues      `json:"issues" bson:"issues"`
	KPIs     KPIs        `json:"kpis" bson:"kpis"`
}

// FetchMeta describes the outbound fetch of the target page
type FetchMeta struct {
	Status         int               `json:"status" bson:"status"`
	ResponseTimeMs int64             `json:"responseTimeMs" bson:"response_time_ms"`
	TotalBytes     int64             `json:"totalBytes" bson:"total_bytes"`
	ContentType    string            `json:"contentType" bson:"content_type"`
	Headers        map[string]string `json:"headers" bson:"headers"`
}

// Signals are the content markers extracted from the page HTML.
// Optional text fields are nil when the element is missing or blank.
type Signals struct {
	Title           *string  `json:"title" bson:"title"`
	MetaDescription *string  `json:"metaDescription" bson:"meta_description"`
	H1Count         int      `json:"h1Count" bson:"h1_count"`
	ImagesTotal     int      `json:"imagesTotal" bson:"images_total"`
	ImagesWithAlt   int      `json:"imagesWithAlt" bson:"images_with_alt"`
	HasViewport     bool     `json:"hasViewport" bson:"has_viewport"`
	HasCanonical    bool     `json:"hasCanonical" bson:"has_canonical"`
	OGTitle         *string  `json:"ogTitle" bson:"og_title"`
	OGImage         *string  `json:"ogImage" bson:"og_image"`
	TwitterCard     *string  `json:"twitterCard" bson:"twitter_card"`
	WordCount       int      `json:"wordCount" bson:"word_count"`
	OutboundLinks   int      `json:"outboundLinks" bson:"outbound_links"`
	OutboundHosts   []string `json:"outboundHosts" bson:"outbound_hosts"`
}

// Scores holds the four sub-scores and the overall score, all in [0,100]
type Scores struct {
	Overall     int `json:"overallScore" bson:"overall_score"`
	SEO         int `json:"seoScore" bson:"seo_score"`
	Brand       int `json:"brandScore" bson:"brand_score"`
	Social      int `json:"socialScore" bson:"social_score"`
	Performance int `json:"performanceScore" bson:"performance_score"`
}

// PSIMetrics are the Lighthouse figures reported by the page-speed collaborator.
// Timings are in milliseconds and nil when the report omitted them.
type PSIMetrics struct {
	LCP              *float64 `json:"lcp" bson:"lcp"`
	FCP              *float64 `json:"fcp" bson:"fcp"`
	TTFB             *float64 `json:"ttfb" bson:"ttfb"`
	CLS              *float64 `json:"cls,omitempty" bson:"cls,omitempty"`
	PerformanceScore int      `json:"performanceScore" bson:"performance_score"`
}

// Keyword is one term-frequency entry. Rank and Change are synthetic.
type Keyword struct {
	Keyword string `json:"keyword" bson:"keyword"`
	Count   int    `json:"count" bson:"count"`
	Rank    int    `json:"rank" bson:"rank"`
	Change  int    `json:"change" bson:"change"`
}

type Issues struct {
	MissingMetaDescriptions int `json:"missing_meta_descriptions" bson:"missing_meta_descriptions"`
	SlowLoadingPages        int `json:"slow_loading_pages" bson:"slow_loading_pages"`
	BrokenInternalLinks     int `json:"broken_internal_links" bson:"broken_internal_links"`
	MissingAltTags          int `json:"missing_alt_tags" bson:"missing_alt_tags"`
}

// KPIs are estimates derived from page content, not measured figures
type KPIs struct {
	SEOScore        int `json:"seo_score" bson:"seo_score"`
	OrganicTraffic  int `json:"organic_traffic" bson:"organic_traffic"`
	KeywordRankings int `json:"keyword_rankings" bson:"keyword_rankings"`
	Backlinks       int `json:"backlinks" bson:"backlinks"`
}

// Metric returns the named score of the record, or false for an unknown name.
func (s Scores) Metric(name string) (int, bool) {
	switch name {
	case "overall":
		return s.Overall, true
	case "seo":
		return s.SEO, true
	case "brand":
		return s.Brand, true
	case "social":
		return s.Social, true
	case "performance":
		return s.Performance, true
	}
	return 0, false
}
