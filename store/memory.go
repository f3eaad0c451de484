package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rankpro/backend/analyzer"
)

// MemoryStore keeps records in an append-only slice. It never returns an error.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*analyzer.AnalysisRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Save(_ context.Context, record *analyzer.AnalysisRecord) (*analyzer.AnalysisRecord, error) {
	stored := prepare(record, m.now())

	m.mu.Lock()
	m.records = append(m.records, stored)
	m.mu.Unlock()

	out := *stored
	return &out, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*analyzer.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newestFirst(0, len(m.records)), nil
}

// newestFirst copies up to limit records, skipping the newest skip
func (m *MemoryStore) newestFirst(skip, limit int) []*analyzer.AnalysisRecord {
	items := make([]*analyzer.AnalysisRecord, 0, min(limit, len(m.records)))
	for i := len(m.records) - 1 - skip; i >= 0 && len(items) < limit; i-- {
		record := *m.records[i]
		items = append(items, &record)
	}
	return items
}

func (m *MemoryStore) Page(_ context.Context, page, limit int) (*Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := int64(len(m.records))
	items := []*analyzer.AnalysisRecord{}
	if skip, ok := pageOffset(page, limit, total); ok {
		items = m.newestFirst(int(skip), limit)
	}
	return &Page{Total: total, Page: page, Limit: limit, Items: items}, nil
}

func (m *MemoryStore) Latest(_ context.Context) (*analyzer.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 {
		return nil, ErrNotFound
	}
	record := *m.records[len(m.records)-1]
	return &record, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*analyzer.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.ID == id {
			record := *r
			return &record, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Trend(_ context.Context, metric string, days int) ([]TrendPoint, error) {
	if _, ok := trendFields[metric]; !ok || days <= 0 {
		return []TrendPoint{}, nil
	}
	since := trendSince(m.now(), days)

	sums := make(map[string]float64)
	counts := make(map[string]int)

	m.mu.RLock()
	for _, r := range m.records {
		if r.CreatedAt.Before(since) {
			continue
		}
		score, _ := r.Scores.Metric(metric)
		bucket := r.CreatedAt.UTC().Format(bucketLayout)
		sums[bucket] += float64(score)
		counts[bucket]++
	}
	m.mu.RUnlock()

	points := make([]TrendPoint, 0, len(sums))
	for bucket, sum := range sums {
		points = append(points, TrendPoint{
			BucketDate: bucket,
			AvgScore:   roundAverage(sum / float64(counts[bucket])),
			Count:      int64(counts[bucket]),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].BucketDate < points[j].BucketDate })
	return points, nil
}

// Len returns the number of stored records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close(context.Context) error { return nil }
