// Package store persists analysis records. Records are append-only: there
// is no update or delete.
package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rankpro/backend/analyzer"
)

// ErrNotFound is returned by Latest and Get when there is no matching record
var ErrNotFound = errors.New("analysis not found")

// Store is implemented by every persistence backend
type Store interface {
	// Save assigns ID and CreatedAt when empty and returns the stored record.
	Save(ctx context.Context, record *analyzer.AnalysisRecord) (*analyzer.AnalysisRecord, error)
	// List returns every record, newest first.
	List(ctx context.Context) ([]*analyzer.AnalysisRecord, error)
	Page(ctx context.Context, page, limit int) (*Page, error)
	Latest(ctx context.Context) (*analyzer.AnalysisRecord, error)
	Get(ctx context.Context, id string) (*analyzer.AnalysisRecord, error)
	// Trend averages metric per UTC day over the last days days, oldest bucket first.
	Trend(ctx context.Context, metric string, days int) ([]TrendPoint, error)
	Close(ctx context.Context) error
}

// Page is one page of records, newest first
type Page struct {
	Total int64                      `json:"total"`
	Page  int                        `json:"page"`
	Limit int                        `json:"limit"`
	Items []*analyzer.AnalysisRecord `json:"items"`
}

// TrendPoint is the average score of one day. Count is the number of
// records behind the average.
type TrendPoint struct {
	BucketDate string  `json:"bucketDate" bson:"_id"`
	AvgScore   float64 `json:"avgScore" bson:"avg_score"`
	Count      int64   `json:"-" bson:"count"`
}

const (
	bucketLayout = "2006-01-02"

	// MaxTrendDays bounds the trend window; longer windows are clamped.
	MaxTrendDays = 3650
)

// pageOffset returns how many records precede page, or false when the page
// starts at or past total.
func pageOffset(page, limit int, total int64) (int64, bool) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return 0, false
	}
	pages := (total + int64(limit) - 1) / int64(limit)
	if int64(page-1) >= pages {
		return 0, false
	}
	return int64(page-1) * int64(limit), true
}

// trendSince is the start of a days-long window ending at now
func trendSince(now time.Time, days int) time.Time {
	days = min(days, MaxTrendDays)
	return now.UTC().AddDate(0, 0, -days)
}

// trendFields maps metric names to the stored score fields
var trendFields = map[string]string{
	"overall":     "overall_score",
	"seo":         "seo_score",
	"brand":       "brand_score",
	"social":      "social_score",
	"performance": "performance_score",
}

// newID returns a time-ordered identifier
func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// prepare returns a copy of record with ID and CreatedAt filled in
func prepare(record *analyzer.AnalysisRecord, now time.Time) *analyzer.AnalysisRecord {
	stored := *record
	if stored.ID == "" {
		stored.ID = newID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.CreatedAt = stored.CreatedAt.UTC().Truncate(time.Millisecond)
	return &stored
}

func roundAverage(v float64) float64 {
	return math.Round(v*100) / 100
}
