package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"collectes/internal/insights"
)

// Rebuild 由明细记录重建聚合表
// POST /api/aggregates/rebuild?year=2025
func (h *Handler) Rebuild(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	res, err := h.calc.Rebuild(year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetTotals 各站点与总计
// GET /api/totals?year=2025
func (h *Handler) GetTotals(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	totals, err := h.calc.Totals(year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// GetSummary 站点 × 月份 × 品类完整汇总
// GET /api/summary?year=2025
func (h *Handler) GetSummary(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	summary, err := h.calc.Summary(year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetDiagnostics 质量守恒诊断
// GET /api/diagnostics?year=2025
func (h *Handler) GetDiagnostics(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	diag, err := h.calc.Diagnostics(year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, diag)
}

// GetInsight 分析视图
// GET /api/insights/:kind?year=2025&granularity=month&limit=10
func (h *Handler) GetInsight(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}

	q := insights.Query{Year: year, Limit: insights.DefaultLimit}
	if raw := c.Query("granularity"); raw != "" {
		g, err := insights.ParseGranularity(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		q.Granularity = g
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "非法 limit: " + raw})
			return
		}
		q.Limit = limit
	}

	kind := c.Param("kind")
	result, err := h.insights.Compute(kind, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "year": year, "items": result})
}
