package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Statistics returns request statistics plus this month's service counters
func (h *Handler) Statistics(c *gin.Context) {
	body := gin.H{}
	if h.statistics != nil {
		for k, v := range h.statistics.GetStatistics() {
			body[k] = v
		}
	}
	if h.counters != nil {
		body["monthly"] = h.counters.GetCurrentStats()
	}
	c.JSON(http.StatusOK, body)
}
