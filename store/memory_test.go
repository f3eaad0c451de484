package store

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankpro/backend/analyzer"
)

// tickingClock advances by step on every call
func tickingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := current
		current = current.Add(step)
		return t
	}
}

func newRecord(url string, overall int) *analyzer.AnalysisRecord {
	return &analyzer.AnalysisRecord{
		URL:    url,
		Scores: analyzer.Scores{Overall: overall, SEO: overall / 2},
	}
}

func seed(t *testing.T, s Store, n int) []*analyzer.AnalysisRecord {
	t.Helper()
	saved := make([]*analyzer.AnalysisRecord, 0, n)
	for i := 0; i < n; i++ {
		r, err := s.Save(context.Background(), newRecord(fmt.Sprintf("https://site%d.test", i), i))
		require.NoError(t, err)
		saved = append(saved, r)
	}
	return saved
}

func TestMemorySaveAssignsIdentity(t *testing.T) {
	s := NewMemoryStore()
	in := newRecord("https://example.com", 50)

	first, err := s.Save(context.Background(), in)
	require.NoError(t, err)
	second, err := s.Save(context.Background(), in)
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID, "same URL must produce distinct records")
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, first.CreatedAt.Location())
	assert.Empty(t, in.ID, "input must not be mutated")

	got1, err := s.Get(context.Background(), first.ID)
	require.NoError(t, err)
	got2, err := s.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got1)
	assert.Equal(t, second, got2)
}

func TestMemoryPageNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	s.now = tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)
	saved := seed(t, s, 25)

	page, err := s.Page(context.Background(), 2, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.Limit)
	require.Len(t, page.Items, 10)
	for i, item := range page.Items {
		assert.Equal(t, saved[14-i].ID, item.ID)
	}

	last, err := s.Page(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)

	beyond, err := s.Page(context.Background(), 4, 10)
	require.NoError(t, err)
	assert.NotNil(t, beyond.Items)
	assert.Empty(t, beyond.Items)

	huge, err := s.Page(context.Background(), math.MaxInt/2, 100)
	require.NoError(t, err)
	assert.Empty(t, huge.Items, "an overflowing offset must not wrap to the first page")
}

func TestMemoryListAndLatest(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	saved := seed(t, s, 3)
	list, err = s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, saved[2].ID, list[0].ID)
	assert.Equal(t, saved[0].ID, list[2].ID)

	latest, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, saved[2].ID, latest.ID)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTrend(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	add := func(at time.Time, overall int) {
		r := newRecord("https://example.com", overall)
		r.CreatedAt = at
		_, err := s.Save(context.Background(), r)
		require.NoError(t, err)
	}
	add(now.Add(-10*24*time.Hour), 10) // outside a 7 day window
	add(now.Add(-2*24*time.Hour), 60)
	add(now.Add(-2*24*time.Hour+time.Hour), 71)
	add(now.Add(-time.Hour), 80)

	points, err := s.Trend(context.Background(), "overall", 7)
	require.NoError(t, err)
	assert.Equal(t, []TrendPoint{
		{BucketDate: "2024-03-08", AvgScore: 65.5, Count: 2},
		{BucketDate: "2024-03-10", AvgScore: 80, Count: 1},
	}, points)

	seo, err := s.Trend(context.Background(), "seo", 30)
	require.NoError(t, err)
	require.Len(t, seo, 3)
	assert.Equal(t, "2024-02-29", seo[0].BucketDate)
	assert.Equal(t, 5.0, seo[0].AvgScore)

	unknown, err := s.Trend(context.Background(), "virality", 7)
	require.NoError(t, err)
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)

	none, err := s.Trend(context.Background(), "overall", 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	// windows past MaxTrendDays are clamped rather than overflowing
	huge, err := s.Trend(context.Background(), "overall", 1_000_000)
	require.NoError(t, err)
	assert.Len(t, huge, 3)
}

func TestMemoryConcurrentSaves(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.Save(context.Background(), newRecord("https://example.com", i))
				s.List(context.Background())
			}
		}(i)
	}
	wg.Wait()

	page, err := s.Page(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(200), page.Total)
}

func TestRoundAverage(t *testing.T) {
	assert.Equal(t, 66.67, roundAverage(200.0/3))
	assert.Equal(t, 50.0, roundAverage(50))
}
