package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MonthlyStats holds the service counters for one calendar month
type MonthlyStats struct {
	Analyses       int       `json:"analyses"`
	Failures       int       `json:"failures"`
	RateLimited    int       `json:"rate_limited"`
	FallbackWrites int       `json:"fallback_writes"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Storage keeps monthly counters and persists them to DATA_DIR/stats.json
type Storage struct {
	mutex       sync.RWMutex
	flushMu     sync.Mutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	now         func() time.Time
}

// NewStorage loads existing counters from dataDir and starts the background writer
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, "stats.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		now:         time.Now,
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	go s.backgroundWriter()

	return s, nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.stats)
}

// Flush writes the counters to disk immediately
func (s *Storage) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// temp file + rename keeps stats.json intact on a crash mid-write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

func (s *Storage) backgroundWriter() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
		case <-ticker.C:
		case <-s.done:
			return
		}
		if err := s.Flush(); err != nil {
			log.Warn().Err(err).Str("path", s.filePath).Msg("failed to persist monthly stats")
		}
	}
}

// Close stops the background writer and flushes the counters one last time
func (s *Storage) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.Flush()
}

func (s *Storage) currentMonth() string {
	return s.now().UTC().Format("2006-01")
}

func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// write already pending
	}
}

// IncrementStats adds the given deltas to the current month
func (s *Storage) IncrementStats(analyses, failures, rateLimited, fallbackWrites int) {
	month := s.currentMonth()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}

	stats.Analyses += analyses
	stats.Failures += failures
	stats.RateLimited += rateLimited
	stats.FallbackWrites += fallbackWrites
	stats.LastUpdated = s.now().UTC()

	if s.now().Sub(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = s.now()
	}
}

// RecordAnalysis counts a finished /analyze call
func (s *Storage) RecordAnalysis(failed bool) {
	if failed {
		s.IncrementStats(0, 1, 0, 0)
		return
	}
	s.IncrementStats(1, 0, 0, 0)
}

// RecordRateLimited counts a rejected request
func (s *Storage) RecordRateLimited() {
	s.IncrementStats(0, 0, 1, 0)
}

// RecordFallbackWrite counts a record that went to the in-memory store
// because the primary store failed.
func (s *Storage) RecordFallbackWrite() {
	s.IncrementStats(0, 0, 0, 1)
}

// GetCurrentStats returns the counters for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	month := s.currentMonth()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[month]; exists {
		return *stats
	}
	return MonthlyStats{}
}

// Cleanup drops every month except the current and the previous one
func (s *Storage) Cleanup() {
	current := s.now().UTC()
	currentMonth := current.Format("2006-01")
	previousMonth := current.AddDate(0, -1, 0).Format("2006-01")

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for key := range s.stats {
		if key != currentMonth && key != previousMonth {
			delete(s.stats, key)
		}
	}

	s.requestWrite()

	log.Debug().Str("current", currentMonth).Str("previous", previousMonth).Msg("retained monthly stats")
}

// GetMonthlyStats returns the counters for yearMonth ("YYYY-MM")
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return *stats, true
	}
	return MonthlyStats{}, false
}

// GetAllMonths lists the months with counters, newest first
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	return months
}
