package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rankpro/backend/logging"
	"github.com/rankpro/backend/stats"
)

// AnalyzedURLKey is the gin context key under which the analyze handler
// stores the normalized target URL.
const AnalyzedURLKey = "analyzedURL"

const analyzeRoute = "/api/analyze"

// Stats tracks visitors on every request and the outcome of analyze calls.
// counters may be nil.
func Stats(statistics *logging.Statistics, counters *stats.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		statistics.TrackVisitor(c.ClientIP())

		c.Next()

		if c.FullPath() != analyzeRoute || c.Request.Method != http.MethodPost {
			return
		}

		status := c.Writer.Status()
		if counters != nil {
			if status == http.StatusTooManyRequests {
				counters.RecordRateLimited()
			} else {
				counters.RecordAnalysis(status >= http.StatusBadRequest)
			}
		}
		if status == http.StatusTooManyRequests {
			return
		}

		loadTime := float64(time.Since(start).Milliseconds())
		statistics.TrackAnalysis(c.GetString(AnalyzedURLKey), loadTime, status >= http.StatusBadRequest)

		if statistics.TotalRequests()%100 == 0 {
			go func() {
				if err := statistics.Save(); err != nil {
					log.Warn().Err(err).Msg("failed to save statistics")
				}
			}()
		}
	}
}
