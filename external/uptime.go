package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	uptimeRobotHost = "https://api.uptimerobot.com"

	// DefaultUptime is reported when no monitor data is available
	DefaultUptime = "99.9"
)

// UptimeClient reads 30-day uptime ratios from UptimeRobot
type UptimeClient struct {
	base
	apiKey string
}

func NewUptimeClient(apiKey string, opts ...Option) *UptimeClient {
	return &UptimeClient{base: newBase(opts), apiKey: apiKey}
}

// Configured reports whether an API key is set
func (c *UptimeClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Uptime returns the 30-day uptime percentage of the first monitor
// matching host, e.g. "99.98".
func (c *UptimeClient) Uptime(ctx context.Context, host string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("format", "json")
	form.Set("custom_uptime_ratios", "30")
	form.Set("search", host)

	req, err := http.NewRequest(http.MethodPost, c.endpoint(uptimeRobotHost, "/v2/getMonitors"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body struct {
		Stat     string `json:"stat"`
		Monitors []struct {
			CustomUptimeRatio string `json:"custom_uptime_ratio"`
		} `json:"monitors"`
	}
	if err := c.doJSON(ctx, "uptimerobot", req, &body); err != nil {
		return "", err
	}
	if body.Stat != "ok" {
		return "", fmt.Errorf("uptimerobot returned stat %q", body.Stat)
	}
	if len(body.Monitors) == 0 || body.Monitors[0].CustomUptimeRatio == "" {
		return "", fmt.Errorf("no uptime monitor for %s", host)
	}
	return body.Monitors[0].CustomUptimeRatio, nil
}

// UptimeOrDefault returns the monitored uptime, or DefaultUptime on any failure
func (c *UptimeClient) UptimeOrDefault(ctx context.Context, host string) string {
	uptime, err := c.Uptime(ctx, host)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			log.Warn().Err(err).Str("host", host).Msg("uptime lookup failed, using default")
		}
		return DefaultUptime
	}
	return uptime
}
