package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	newsAPIHost      = "https://newsapi.org"
	openPageRankHost = "https://openpagerank.com"
	safeBrowsingHost = "https://safebrowsing.googleapis.com"

	// defaults used when a lookup is unconfigured or fails
	defaultMentions  = 0
	defaultPageRank  = 0
	defaultTrust     = 60
	flaggedTrust     = 20
	cleanTrust       = 90
	newsPageSize     = 50
	maxMentionScore  = 100
	mentionsPerPoint = 2
)

var (
	// ErrInvalidTarget is returned when no hostname can be derived from the input
	ErrInvalidTarget = errors.New("url must contain a hostname")
	errNoBrandData   = errors.New("no brand collaborator answered")
)

// BrandKeys are the API keys of the brand collaborators. Any may be empty.
type BrandKeys struct {
	NewsAPI      string
	OpenPageRank string
	SafeBrowsing string
}

// BrandRanking is the response of /brand-ranking
type BrandRanking struct {
	URL             string `json:"url"`
	Domain          string `json:"domain"`
	BrandScore      int    `json:"brandScore"`
	BrandMentions   int    `json:"brandMentions"`
	DomainAuthority int    `json:"domainAuthority"`
	TrustScore      int    `json:"trustScore"`
}

// BrandClient combines news mentions, page rank and safe-browsing status
// into a brand score.
type BrandClient struct {
	base
	keys BrandKeys
}

func NewBrandClient(keys BrandKeys, opts ...Option) *BrandClient {
	return &BrandClient{base: newBase(opts), keys: keys}
}

// Configured reports whether at least one collaborator key is set
func (c *BrandClient) Configured() bool {
	return c.keys.NewsAPI != "" || c.keys.OpenPageRank != "" || c.keys.SafeBrowsing != ""
}

// BrandScoreOf combines the three signals:
// round(DA*0.5 + trust*0.3 + min(100, mentions*2)*0.2), DA = round(pageRank/10*100).
func BrandScoreOf(mentions, pageRank, trust int) (score, domainAuthority int) {
	domainAuthority = int(math.Round(float64(pageRank) / 10 * 100))
	mentionScore := math.Min(maxMentionScore, float64(mentions*mentionsPerPoint))
	raw := float64(domainAuthority)*0.5 + float64(trust)*0.3 + mentionScore*0.2
	score = int(math.Max(0, math.Min(math.Round(raw), 100)))
	return score, domainAuthority
}

// Domain returns the lower-cased hostname of target. Scheme-less input is accepted.
func Domain(target string) (string, error) {
	raw := strings.TrimSpace(target)
	if raw == "" {
		return "", ErrInvalidTarget
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", ErrInvalidTarget
	}
	return strings.ToLower(u.Hostname()), nil
}

// Rank runs the three lookups concurrently. Failed lookups fall back to
// their defaults; only an unusable target is an error.
func (c *BrandClient) Rank(ctx context.Context, target string) (*BrandRanking, error) {
	ranking, _, err := c.rank(ctx, target)
	return ranking, err
}

func (c *BrandClient) rank(ctx context.Context, target string) (*BrandRanking, int32, error) {
	domain, err := Domain(target)
	if err != nil {
		return nil, 0, err
	}
	brandName := strings.TrimPrefix(domain, "www.")

	mentions, pageRank, trust := defaultMentions, defaultPageRank, defaultTrust
	var answered atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	if c.keys.NewsAPI != "" {
		g.Go(func() error {
			n, err := c.newsMentions(gctx, brandName)
			if err != nil {
				log.Warn().Err(err).Str("domain", domain).Msg("news mentions lookup failed")
				return nil
			}
			mentions = n
			answered.Add(1)
			return nil
		})
	}
	if c.keys.OpenPageRank != "" {
		g.Go(func() error {
			rank, err := c.pageRank(gctx, domain)
			if err != nil {
				log.Warn().Err(err).Str("domain", domain).Msg("page rank lookup failed")
				return nil
			}
			pageRank = rank
			answered.Add(1)
			return nil
		})
	}
	if c.keys.SafeBrowsing != "" {
		g.Go(func() error {
			score, err := c.trustScore(gctx, target)
			if err != nil {
				log.Warn().Err(err).Str("domain", domain).Msg("safe browsing lookup failed")
				return nil
			}
			trust = score
			answered.Add(1)
			return nil
		})
	}
	// lookups never return errors; failures keep their default
	g.Wait()

	score, da := BrandScoreOf(mentions, pageRank, trust)
	return &BrandRanking{
		URL:             target,
		Domain:          domain,
		BrandScore:      score,
		BrandMentions:   mentions,
		DomainAuthority: da,
		TrustScore:      trust,
	}, answered.Load(), nil
}

// BrandScore implements analyzer.BrandScorer. It fails when no lookup
// answered, so the analysis keeps its local heuristic.
func (c *BrandClient) BrandScore(ctx context.Context, target string) (int, error) {
	ranking, answered, err := c.rank(ctx, target)
	if err != nil {
		return 0, err
	}
	if answered == 0 {
		return 0, errNoBrandData
	}
	return ranking.BrandScore, nil
}

func (c *BrandClient) newsMentions(ctx context.Context, brand string) (int, error) {
	q := url.Values{}
	q.Set("q", brand)
	q.Set("pageSize", fmt.Sprint(newsPageSize))
	q.Set("language", "en")
	q.Set("apiKey", c.keys.NewsAPI)

	req, err := http.NewRequest(http.MethodGet, c.endpoint(newsAPIHost, "/v2/everything")+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}

	var body struct {
		Articles []json.RawMessage `json:"articles"`
	}
	if err := c.doJSON(ctx, "newsapi", req, &body); err != nil {
		return 0, err
	}
	return len(body.Articles), nil
}

func (c *BrandClient) pageRank(ctx context.Context, domain string) (int, error) {
	q := url.Values{}
	q.Set("domains[]", domain)

	req, err := http.NewRequest(http.MethodGet, c.endpoint(openPageRankHost, "/api/v1.0/getPageRank")+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("API-OPR", c.keys.OpenPageRank)

	var body struct {
		Response []struct {
			PageRankInteger int `json:"page_rank_integer"`
		} `json:"response"`
	}
	if err := c.doJSON(ctx, "openpagerank", req, &body); err != nil {
		return 0, err
	}
	if len(body.Response) == 0 {
		return defaultPageRank, nil
	}
	return body.Response[0].PageRankInteger, nil
}

type threatEntry struct {
	URL string `json:"url"`
}

type safeBrowsingRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string      `json:"threatTypes"`
		PlatformTypes    []string      `json:"platformTypes"`
		ThreatEntryTypes []string      `json:"threatEntryTypes"`
		ThreatEntries    []threatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

func (c *BrandClient) trustScore(ctx context.Context, target string) (int, error) {
	checkURL := strings.TrimSpace(target)
	if !strings.Contains(checkURL, "://") {
		checkURL = "http://" + checkURL
	}

	var payload safeBrowsingRequest
	payload.Client.ClientID = "rankpro"
	payload.Client.ClientVersion = "1.0"
	payload.ThreatInfo.ThreatTypes = []string{
		"MALWARE",
		"SOCIAL_ENGINEERING",
		"UNWANTED_SOFTWARE",
		"POTENTIALLY_HARMFUL_APPLICATION",
	}
	payload.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	payload.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	payload.ThreatInfo.ThreatEntries = []threatEntry{{URL: checkURL}}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	endpoint := c.endpoint(safeBrowsingHost, "/v4/threatMatches:find") + "?key=" + url.QueryEscape(c.keys.SafeBrowsing)
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	var body struct {
		Matches []json.RawMessage `json:"matches"`
	}
	if err := c.doJSON(ctx, "safebrowsing", req, &body); err != nil {
		return 0, err
	}
	if len(body.Matches) > 0 {
		return flaggedTrust, nil
	}
	return cleanTrust, nil
}
