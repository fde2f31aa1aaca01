package v1

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collectes/internal/config"
	"collectes/internal/exporter"
)

const exportDownloadTTL = 10 * time.Minute

// Export 生成 CALCUL POIDS 报表并返回下载链接
// POST /api/export?year=2025
func (h *Handler) Export(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}

	var stages []string
	f, summary, err := h.exporter.Export(exporter.ExportOptions{
		Year: year,
		Progress: func(e exporter.ProgressEvent) {
			stages = append(stages, e.Stage)
		},
	})
	if err != nil {
		h.logger.Error("export failed", zap.Int("year", year), zap.Error(err))
		writeError(c, err)
		return
	}
	defer func() { _ = f.Close() }()

	path, err := exporter.SaveAs(f, config.GetDataPath(h.cfg, "exports", ""), year)
	if err != nil {
		writeError(c, err)
		return
	}

	token := h.downloads.put(path, year, exportDownloadTTL)
	c.JSON(http.StatusOK, gin.H{
		"file":         filepath.Base(path),
		"title":        exporter.Title(summary),
		"sites":        len(summary.Sites),
		"grandTotalKg": summary.Grand.Total,
		"stages":       stages,
		"downloadUrl":  fmt.Sprintf("%s/export/download/%s", apiPrefix(c), token),
	})
}

// DownloadExport 下载导出的 Excel 文件（一次性链接，文件保留在导出目录）
// GET /api/export/download/:token
func (h *Handler) DownloadExport(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 token"})
		return
	}

	item, ok := h.downloads.get(token)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "下载链接已失效"})
		return
	}
	if _, err := os.Stat(item.filePath); err != nil {
		h.downloads.delete(token)
		c.JSON(http.StatusNotFound, gin.H{"error": "导出文件不存在"})
		return
	}

	c.Header("Content-Disposition", contentDisposition(filepath.Base(item.filePath)))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.File(item.filePath)

	h.downloads.delete(token)
}

func contentDisposition(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
