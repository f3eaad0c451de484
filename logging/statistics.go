package logging

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Statistics collects request-level figures for the /statistics endpoint
type Statistics struct {
	UniqueVisitors   map[string]time.Time `json:"uniqueVisitors"` // IP -> last visit
	AnalysisRequests int                  `json:"analysisRequests"`
	ErrorCount       int                  `json:"errorCount"`
	PopularURLs      map[string]int       `json:"popularUrls"`
	AverageLoadTime  float64              `json:"averageLoadTime"` // ms
	TotalLoadTime    float64              `json:"totalLoadTime"`
	LastPersisted    time.Time            `json:"lastPersisted"`

	mutex    sync.RWMutex
	saveMu   sync.Mutex // one writer of statistics.json at a time
	filePath string
	devMode  bool
	now      func() time.Time
}

// URLCount is one entry of the popular URL list
type URLCount struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// NewStatistics creates statistics persisted to dataDir/statistics.json and
// loads the previous snapshot if there is one. An unreadable snapshot is
// logged and replaced by empty statistics.
func NewStatistics(dataDir string, devMode bool) (*Statistics, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Statistics{
		UniqueVisitors: make(map[string]time.Time),
		PopularURLs:    make(map[string]int),
		filePath:       filepath.Join(dataDir, "statistics.json"),
		devMode:        devMode,
		now:            time.Now,
	}
	if err := s.Load(); err != nil {
		log.Warn().Err(err).Str("file", s.filePath).Msg("could not load statistics, starting fresh")
		s.reset()
	}
	return s, nil
}

// TrackVisitor records a visit from ip
func (s *Statistics) TrackVisitor(ip string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.UniqueVisitors[ip] = s.now()
}

// cleanURL reduces a URL to scheme, host and path without a trailing slash
func cleanURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	cleaned := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	if u.Path != "" && u.Path != "/" {
		cleaned += u.Path
	}
	return strings.TrimSuffix(cleaned, "/")
}

// TrackAnalysis records one /analyze call. target may be empty when the
// request never got as far as a valid URL.
func (s *Statistics) TrackAnalysis(target string, loadTime float64, hasError bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.AnalysisRequests++
	if cleaned := cleanURL(target); cleaned != "" {
		s.PopularURLs[cleaned]++
	}
	if hasError {
		s.ErrorCount++
	}

	s.TotalLoadTime += loadTime
	s.AverageLoadTime = s.TotalLoadTime / float64(s.AnalysisRequests)
}

// TotalRequests returns the number of tracked analysis requests
func (s *Statistics) TotalRequests() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.AnalysisRequests
}

// GetUniqueVisitorsCount returns the number of visitors seen in the last 24 hours
func (s *Statistics) GetUniqueVisitorsCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.uniqueVisitors24h()
}

func (s *Statistics) uniqueVisitors24h() int {
	cutoff := s.now().Add(-24 * time.Hour)
	count := 0
	for _, lastVisit := range s.UniqueVisitors {
		if lastVisit.After(cutoff) {
			count++
		}
	}
	return count
}

// GetPopularURLs returns the n most analyzed URLs, most frequent first
func (s *Statistics) GetPopularURLs(n int) []URLCount {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.popularURLs(n)
}

func (s *Statistics) popularURLs(n int) []URLCount {
	result := make([]URLCount, 0, len(s.PopularURLs))
	for u, freq := range s.PopularURLs {
		result = append(result, URLCount{URL: u, Count: freq})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].URL < result[j].URL
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// GetErrorRate returns the error rate as a percentage
func (s *Statistics) GetErrorRate() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.errorRate()
}

func (s *Statistics) errorRate() float64 {
	if s.AnalysisRequests == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.AnalysisRequests) * 100
}

func (s *Statistics) reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.UniqueVisitors = make(map[string]time.Time)
	s.PopularURLs = make(map[string]int)
	s.AnalysisRequests, s.ErrorCount = 0, 0
	s.AverageLoadTime, s.TotalLoadTime = 0, 0
	s.LastPersisted = time.Time{}
}

// Save writes the statistics to disk through a temp file. Concurrent calls
// are serialized.
func (s *Statistics) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mutex.Lock()
	s.LastPersisted = s.now()
	data, err := json.Marshal(s)
	s.mutex.Unlock()
	if err != nil {
		return fmt.Errorf("could not encode statistics: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("could not write statistics file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("could not replace statistics file: %w", err)
	}
	return nil
}

// Load reads a previous snapshot. A missing file is not an error.
func (s *Statistics) Load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not open statistics file: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("could not decode statistics: %w", err)
	}
	if s.UniqueVisitors == nil {
		s.UniqueVisitors = make(map[string]time.Time)
	}
	if s.PopularURLs == nil {
		s.PopularURLs = make(map[string]int)
	}
	return nil
}

// GetStatistics returns the public figures. Popular URLs are only exposed
// in dev mode.
func (s *Statistics) GetStatistics() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := map[string]interface{}{
		"uniqueVisitors24h": s.uniqueVisitors24h(),
		"totalRequests":     s.AnalysisRequests,
		"errorRate":         s.errorRate(),
		"averageLoadTime":   s.AverageLoadTime,
	}
	if s.devMode {
		result["popularUrls"] = s.popularURLs(5)
	}
	return result
}
