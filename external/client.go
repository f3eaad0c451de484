// Package external talks to the optional third-party collaborators:
// PageSpeed Insights, NewsAPI, OpenPageRank, Safe Browsing and UptimeRobot.
// Every client degrades to a default value when its key is missing.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// maxResponseSize bounds collaborator responses; PSI reports run to a few MB
const maxResponseSize = 16 * 1024 * 1024

// Option configures a collaborator client
type Option func(*base)

type base struct {
	httpClient *http.Client
	// baseURL replaces the scheme and host of every endpoint when set
	baseURL string
}

func newBase(opts []Option) base {
	b := base{httpClient: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithHTTPClient sets the HTTP client used for outbound calls
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) { b.httpClient = c }
}

// WithBaseURL points the client at another host, e.g. a test server
func WithBaseURL(u string) Option {
	return func(b *base) { b.baseURL = u }
}

func (b *base) endpoint(defaultHost, path string) string {
	if b.baseURL != "" {
		return b.baseURL + path
	}
	return defaultHost + path
}

// StatusError is returned when a collaborator answers with a non-2xx status
type StatusError struct {
	Service string
	Status  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.Status)
}

// doJSON sends req and decodes a 2xx JSON body into out
func (b *base) doJSON(ctx context.Context, service string, req *http.Request, out interface{}) error {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Service: service, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("%s returned malformed JSON: %w", service, err)
	}
	return nil
}
