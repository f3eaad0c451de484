package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTrendPipeline(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	pipeline := trendPipeline("seo_score", since)

	require.Len(t, pipeline, 3)
	assert.Equal(t, "$match", pipeline[0][0].Key)
	assert.Equal(t, "$group", pipeline[1][0].Key)
	assert.Equal(t, "$sort", pipeline[2][0].Key)

	group := pipeline[1][0].Value.(bson.D)
	assert.Equal(t, bson.D{{Key: "$avg", Value: "$seo_score"}}, group[1].Value)
	assert.Equal(t, "count", group[2].Key)
}

// TestMongoStore runs against a real server when MONGODB_TEST_URI is set
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbName := "rankpro_test_" + newID()[:8]
	s, err := NewMongoStore(ctx, uri, dbName)
	require.NoError(t, err)
	defer func() {
		s.client.Database(dbName).Drop(ctx)
		s.Close(ctx)
	}()

	s.now = tickingClock(time.Now().UTC().Add(-time.Hour), time.Second)
	saved := seed(t, s, 25)

	page, err := s.Page(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.Total)
	require.Len(t, page.Items, 10)
	assert.Equal(t, saved[14].ID, page.Items[0].ID)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved[24].ID, latest.ID)

	got, err := s.Get(ctx, saved[3].ID)
	require.NoError(t, err)
	assert.Equal(t, saved[3].URL, got.URL)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	points, err := s.Trend(ctx, "overall", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, points)
}
