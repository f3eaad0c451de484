package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rankpro/backend/export"
	"github.com/rankpro/backend/middleware"
	"github.com/rankpro/backend/store"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// Analyze runs the pipeline for {url} and persists the record
func (h *Handler) Analyze(c *gin.Context) {
	target, ok := bindURL(c)
	if !ok {
		return
	}
	c.Set(middleware.AnalyzedURLKey, target)

	record, err := h.analyzer.Analyze(c.Request.Context(), target)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("analysis failed")
		respondError(c, err)
		return
	}

	saved, err := h.store.Save(c.Request.Context(), record)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"analysis": saved})
}

// ListAnalyses returns every record, or one page when page or limit is given
func (h *Handler) ListAnalyses(c *gin.Context) {
	pageParam, hasPage := c.GetQuery("page")
	limitParam, hasLimit := c.GetQuery("limit")

	if !hasPage && !hasLimit {
		records, err := h.store.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
		return
	}

	page, limit := defaultPage, defaultLimit
	if hasPage {
		p, err := strconv.Atoi(pageParam)
		if err != nil || p < 1 {
			respondMessage(c, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = p
	}
	if hasLimit {
		l, err := strconv.Atoi(limitParam)
		if err != nil || l < 1 {
			respondMessage(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(l, maxLimit)
	}

	result, err := h.store.Page(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) LatestAnalysis(c *gin.Context) {
	record, err := h.store.Latest(c.Request.Context())
	if errors.Is(err, store.ErrNotFound) {
		respondMessage(c, http.StatusNotFound, "No analyses yet")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	record, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		respondMessage(c, http.StatusNotFound, "Analysis not found")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Trend returns the daily average of a score over the last :days days.
// Unknown metrics yield an empty series.
func (h *Handler) Trend(c *gin.Context) {
	metric := c.Param("metric")
	days, err := strconv.Atoi(c.Param("days"))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "days must be an integer")
		return
	}

	points, err := h.store.Trend(c.Request.Context(), metric, days)
	if err != nil {
		respondError(c, err)
		return
	}
	if points == nil {
		points = []store.TrendPoint{}
	}

	c.JSON(http.StatusOK, gin.H{
		"type": metric,
		"days": days,
		"data": points,
	})
}

// Export downloads every stored analysis as csv, json or xlsx
func (h *Handler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Param("format"))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "format must be one of csv, json, xlsx")
		return
	}

	records, err := h.store.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, records); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+format.Filename(h.now())+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
