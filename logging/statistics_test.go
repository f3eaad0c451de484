package logging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.com/", "https://example.com"},
		{"https://example.com/blog/post/?utm=1", "https://example.com/blog/post"},
		{"http://example.com", "http://example.com"},
		{"", ""},
		{"not a url", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanURL(tt.in), tt.in)
	}
}

func TestTrackAnalysis(t *testing.T) {
	s, err := NewStatistics(t.TempDir(), true)
	require.NoError(t, err)

	s.TrackAnalysis("https://example.com/", 100, false)
	s.TrackAnalysis("https://example.com", 300, true)
	s.TrackAnalysis("https://other.test/page", 200, false)
	s.TrackAnalysis("", 0, true)

	assert.Equal(t, 4, s.TotalRequests())
	assert.InDelta(t, 50.0, s.GetErrorRate(), 0.001)
	assert.InDelta(t, 150.0, s.AverageLoadTime, 0.001)

	popular := s.GetPopularURLs(5)
	require.Len(t, popular, 2)
	assert.Equal(t, URLCount{URL: "https://example.com", Count: 2}, popular[0])
	assert.Equal(t, URLCount{URL: "https://other.test/page", Count: 1}, popular[1])

	assert.Len(t, s.GetPopularURLs(1), 1)
}

func TestUniqueVisitorsWindow(t *testing.T) {
	s, err := NewStatistics(t.TempDir(), false)
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now.Add(-25 * time.Hour) }
	s.TrackVisitor("10.0.0.1")
	s.now = func() time.Time { return now }
	s.TrackVisitor("10.0.0.2")
	s.TrackVisitor("10.0.0.2")

	assert.Equal(t, 1, s.GetUniqueVisitorsCount())
}

func TestGetStatisticsHidesURLsOutsideDevMode(t *testing.T) {
	prod, err := NewStatistics(t.TempDir(), false)
	require.NoError(t, err)
	prod.TrackAnalysis("https://example.com", 10, false)

	got := prod.GetStatistics()
	assert.NotContains(t, got, "popularUrls")
	assert.Equal(t, 1, got["totalRequests"])

	dev, err := NewStatistics(t.TempDir(), true)
	require.NoError(t, err)
	dev.TrackAnalysis("https://example.com", 10, false)
	assert.Contains(t, dev.GetStatistics(), "popularUrls")
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStatistics(dir, true)
	require.NoError(t, err)
	s.TrackVisitor("10.0.0.1")
	s.TrackAnalysis("https://example.com", 120, false)
	require.NoError(t, s.Save())

	_, err = os.Stat(filepath.Join(dir, "statistics.json"))
	require.NoError(t, err)

	reloaded, err := NewStatistics(dir, true)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.TotalRequests())
	assert.Equal(t, 1, reloaded.GetPopularURLs(5)[0].Count)
	assert.InDelta(t, 120.0, reloaded.AverageLoadTime, 0.001)

	reloaded.TrackAnalysis("https://example.com", 80, false)
	assert.InDelta(t, 100.0, reloaded.AverageLoadTime, 0.001)
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "statistics.json"), []byte("{"), 0644))

	s, err := NewStatistics(dir, false)
	require.NoError(t, err, "a damaged snapshot must not stop the service")
	require.NotNil(t, s)
	assert.Equal(t, 0, s.TotalRequests())

	s.TrackAnalysis("https://example.com", 10, false)
	require.NoError(t, s.Save())

	reloaded, err := NewStatistics(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.TotalRequests())
}

func TestConcurrentSaves(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStatistics(dir, false)
	require.NoError(t, err)
	s.TrackAnalysis("https://example.com", 10, false)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Save()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	_, err = os.Stat(filepath.Join(dir, "statistics.json.tmp"))
	assert.True(t, os.IsNotExist(err), "no temp file left behind")

	reloaded, err := NewStatistics(dir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.TotalRequests())
}
