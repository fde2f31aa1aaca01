package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collectes/internal/calculator"
	"collectes/internal/config"
	"collectes/internal/exporter"
	"collectes/internal/importer"
	"collectes/internal/insights"
	"collectes/internal/jobs"
	"collectes/internal/reconcile"
	"collectes/internal/store"
)

// Handler V1 API 处理器
type Handler struct {
	cfg        *config.AppConfig
	store      *store.Store
	calc       *calculator.Calculator
	coord      *importer.Coordinator
	exporter   *exporter.Exporter
	insights   *insights.Service
	reconciler *reconcile.Reconciler
	jobs       *jobs.Registry
	downloads  *exportDownloadStore
	logger     *zap.Logger
}

// NewHandler 创建 V1 API 处理器
func NewHandler(cfg *config.AppConfig, st *store.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	calc := calculator.NewCalculator(st, logger.Named("calculator"))
	return &Handler{
		cfg:        cfg,
		store:      st,
		calc:       calc,
		coord:      importer.NewCoordinator(st, calc, logger.Named("importer")),
		exporter:   exporter.NewExporter(calc, logger.Named("exporter")),
		insights:   insights.NewService(st, logger.Named("insights")),
		reconciler: reconcile.New(calc, logger.Named("reconcile")),
		jobs:       jobs.NewRegistry(logger.Named("jobs")),
		downloads:  newExportDownloadStore(),
		logger:     logger,
	}
}

// RegisterRoutes 注册 V1 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)
	router.GET("/years", h.ListYears)
	router.GET("/files", h.ListFiles)

	// 数据导入
	router.POST("/import", h.Import)
	router.POST("/import/input", h.ImportInput)
	router.POST("/import/stream", h.ImportStream)
	router.GET("/jobs/:id", h.GetJob)

	// 聚合与统计
	router.POST("/aggregates/rebuild", h.Rebuild)
	router.GET("/totals", h.GetTotals)
	router.GET("/summary", h.GetSummary)
	router.GET("/diagnostics", h.GetDiagnostics)
	router.GET("/insights/:kind", h.GetInsight)

	// 报表导出
	router.POST("/export", h.Export)
	router.GET("/export/download/:token", h.DownloadExport)

	// 对账
	router.GET("/reconcile", h.Reconcile)
}

var errYearRequired = errors.New("year is required (0 for all years)")

// yearParam 每个数据接口都显式携带 year，0 表示全部年份
func yearParam(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("year"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errYearRequired.Error()})
		return 0, false
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "非法年份: " + raw})
		return 0, false
	}
	return year, true
}

// writeError 按错误类型映射 HTTP 状态码
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, calculator.ErrNoData),
		errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, insights.ErrUnknownKind),
		errors.Is(err, insights.ErrInvalidGranularity):
		status = http.StatusBadRequest
	case errors.Is(err, exporter.ErrReportMismatch):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
