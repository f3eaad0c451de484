package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankpro/backend/logging"
	"github.com/rankpro/backend/stats"
)

func TestErrorHandlerRecovers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"An unexpected error occurred"}`, w.Body.String())
}

func TestStatsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	statistics, err := logging.NewStatistics(dir, true)
	require.NoError(t, err)
	counters, err := stats.NewStorage(dir)
	require.NoError(t, err)
	defer counters.Close()

	status := http.StatusOK
	r := gin.New()
	r.Use(Stats(statistics, counters))
	r.POST("/api/analyze", func(c *gin.Context) {
		c.Set(AnalyzedURLKey, "https://example.com/")
		c.Status(status)
	})
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(method, path string) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	}

	send(http.MethodGet, "/api/health")
	send(http.MethodPost, "/api/analyze")
	status = http.StatusBadGateway
	send(http.MethodPost, "/api/analyze")
	status = http.StatusTooManyRequests
	send(http.MethodPost, "/api/analyze")

	assert.Equal(t, 2, statistics.TotalRequests())
	assert.InDelta(t, 50.0, statistics.GetErrorRate(), 0.001)
	assert.Equal(t, 1, statistics.GetUniqueVisitorsCount())
	assert.Equal(t, []logging.URLCount{{URL: "https://example.com", Count: 2}}, statistics.GetPopularURLs(5))

	current := counters.GetCurrentStats()
	assert.Equal(t, 1, current.Analyses)
	assert.Equal(t, 1, current.Failures)
	assert.Equal(t, 1, current.RateLimited)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("configured origin", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS("https://app.rankpro.test"))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://evil.test")
		r.ServeHTTP(w, req)

		assert.Equal(t, "https://app.rankpro.test", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("reflected origin and preflight", func(t *testing.T) {
		handled := false
		r := gin.New()
		r.Use(CORS(""))
		r.OPTIONS("/x", func(c *gin.Context) { handled = true })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
		assert.False(t, handled)
	})

	t.Run("no origin", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS(""))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}
