package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collectes/internal/config"
	"collectes/internal/importer"
	"collectes/internal/reconcile"
)

// Reconcile 对比输入目录源文件与数据库两条计算路径
// GET /api/reconcile?year=2025
func (h *Handler) Reconcile(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}

	files, err := importer.IngestDir(config.InputDir(h.cfg))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "输入目录中没有工作簿"})
		return
	}

	report, err := h.reconciler.Run(c.Request.Context(), year, files, reconcile.FromConfig(h.cfg.Reconcile))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": report.Status(),
		"report": report,
	})
}
