package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collectes/internal/store"
	"collectes/internal/taxonomy"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	Initialized    bool             `json:"initialized"`    // 是否已有数据
	LatestYear     int              `json:"latestYear"`     // 最新数据年份
	TotalRecords   int              `json:"totalRecords"`   // 归一化记录数
	TotalFiles     int              `json:"totalFiles"`     // 已导入文件数
	Years          []store.YearStat `json:"years"`          // 各年份统计
	RulesVersion   string           `json:"rulesVersion"`   // 归一化规则版本
	LastImportTime string           `json:"lastImportTime"` // 最后导入时间
}

// GetStatus 获取系统状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{RulesVersion: taxonomy.Version, Years: []store.YearStat{}}

	years, err := h.store.ListYears()
	if err != nil {
		writeError(c, err)
		return
	}
	resp.Years = years
	for _, y := range years {
		resp.TotalRecords += y.Records
		if y.Year > resp.LatestYear {
			resp.LatestYear = y.Year
		}
	}

	files, err := h.store.ListImportFiles()
	if err != nil {
		writeError(c, err)
		return
	}
	resp.TotalFiles = len(files)
	resp.Initialized = resp.TotalRecords > 0

	if logs, err := h.store.ListImportLogs(1); err == nil && len(logs) > 0 {
		resp.LastImportTime = logs[0].CreatedAt.Format("2006-01-02 15:04:05")
	}

	c.JSON(http.StatusOK, resp)
}

// ListYears 可用年份
// GET /api/years
func (h *Handler) ListYears(c *gin.Context) {
	years, err := h.store.ListYears()
	if err != nil {
		writeError(c, err)
		return
	}
	if years == nil {
		years = []store.YearStat{}
	}
	c.JSON(http.StatusOK, gin.H{"items": years})
}

// ListFiles 已导入文件
// GET /api/files
func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.store.ListImportFiles()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": files})
}
