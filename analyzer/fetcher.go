package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const maxBodySize = 10 * 1024 * 1024

// ErrInvalidURL is returned for input that cannot be turned into an absolute URL
var ErrInvalidURL = errors.New("invalid url")

// FetchResult is the raw outcome of a page fetch
type FetchResult struct {
	Meta FetchMeta
	Body string
}

// Fetcher issues the single outbound GET for an analysis
type Fetcher struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
}

// NewFetcher creates a Fetcher with a pooled transport and a fixed timeout
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if userAgent == "" {
		userAgent = "RankProBot/1.0"
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		userAgent: userAgent,
		now:       time.Now,
	}
}

// NormalizeURL prefixes http:// when no scheme is given and checks for a host.
func NormalizeURL(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", ErrInvalidURL
	}
	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		target = "http://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

// Fetch retrieves the page at target, which must already be normalized.
func (f *Fetcher) Fetch(ctx context.Context, target string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &AppError{Kind: InvalidInput, Message: "Invalid URL", Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyFetchError(err)
	}
	elapsed := f.now().Sub(start)

	contentType := resp.Header.Get("Content-Type")
	body, err := decodeBody(raw, contentType)
	if err != nil {
		return nil, &AppError{Kind: Decode, Message: "Failed to decode the page body", Cause: err}
	}

	return &FetchResult{
		Meta: FetchMeta{
			Status:         resp.StatusCode,
			ResponseTimeMs: elapsed.Milliseconds(),
			TotalBytes:     int64(len(raw)),
			ContentType:    contentType,
			Headers:        flattenHeaders(resp.Header),
		},
		Body: body,
	}, nil
}

func decodeBody(raw []byte, contentType string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for key, values := range h {
		headers[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return headers
}

func classifyFetchError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &AppError{Kind: Timeout, Message: "Timed out fetching the URL", Cause: err}
	}
	return &AppError{Kind: Unreachable, Message: "Failed to fetch or analyze the URL", Cause: err}
}
