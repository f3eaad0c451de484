package stats

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	tempDir := t.TempDir()

	storage, err := NewStorage(tempDir)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	t.Run("IncrementStats", func(t *testing.T) {
		storage.IncrementStats(1, 2, 3, 4)
		stats := storage.GetCurrentStats()

		assert.Equal(t, 1, stats.Analyses)
		assert.Equal(t, 2, stats.Failures)
		assert.Equal(t, 3, stats.RateLimited)
		assert.Equal(t, 4, stats.FallbackWrites)
		assert.False(t, stats.LastUpdated.IsZero())
	})

	t.Run("RecordHelpers", func(t *testing.T) {
		before := storage.GetCurrentStats()
		storage.RecordAnalysis(false)
		storage.RecordAnalysis(true)
		storage.RecordRateLimited()
		storage.RecordFallbackWrite()
		after := storage.GetCurrentStats()

		assert.Equal(t, before.Analyses+1, after.Analyses)
		assert.Equal(t, before.Failures+1, after.Failures)
		assert.Equal(t, before.RateLimited+1, after.RateLimited)
		assert.Equal(t, before.FallbackWrites+1, after.FallbackWrites)
	})

	t.Run("Persistence", func(t *testing.T) {
		require.NoError(t, storage.Flush())

		storage2, err := NewStorage(tempDir)
		require.NoError(t, err)
		defer storage2.Close()

		assert.Equal(t, storage.GetCurrentStats().Analyses, storage2.GetCurrentStats().Analyses)
	})

	t.Run("Cleanup", func(t *testing.T) {
		oldMonth := time.Now().UTC().AddDate(0, -2, 0).Format("2006-01")
		storage.mutex.Lock()
		storage.stats[oldMonth] = &MonthlyStats{Analyses: 100}
		storage.mutex.Unlock()

		storage.Cleanup()

		_, exists := storage.GetMonthlyStats(oldMonth)
		assert.False(t, exists, "old stats should have been cleaned up")
		assert.Contains(t, storage.GetAllMonths(), time.Now().UTC().Format("2006-01"))
	})

	t.Run("FileSize", func(t *testing.T) {
		require.NoError(t, storage.Flush())

		info, err := os.Stat(filepath.Join(tempDir, "stats.json"))
		require.NoError(t, err)
		assert.Less(t, info.Size(), int64(1024))
		_, err = os.Stat(filepath.Join(tempDir, "stats.json.tmp"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		before := storage.GetCurrentStats()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					storage.IncrementStats(1, 1, 0, 0)
					storage.GetCurrentStats()
				}
			}()
		}
		wg.Wait()

		after := storage.GetCurrentStats()
		assert.Equal(t, before.Analyses+1000, after.Analyses)
		assert.Equal(t, before.Failures+1000, after.Failures)
	})
}

func TestGetAllMonthsNewestFirst(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	defer storage.Close()

	storage.now = func() time.Time { return time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC) }
	storage.IncrementStats(1, 0, 0, 0)
	storage.now = func() time.Time { return time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC) }
	storage.IncrementStats(1, 0, 0, 0)

	assert.Equal(t, []string{"2024-05", "2024-03"}, storage.GetAllMonths())

	storage.Cleanup()
	assert.Equal(t, []string{"2024-05"}, storage.GetAllMonths())
}

func TestCorruptFileFailsLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stats.json"), []byte("{not json"), 0644))

	_, err := NewStorage(dir)
	assert.Error(t, err)
}

func TestConcurrentFlushes(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStorage(dir)
	require.NoError(t, err)
	defer s.Close()

	s.RecordAnalysis(false)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Flush()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	_, err = os.Stat(filepath.Join(dir, "stats.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}
