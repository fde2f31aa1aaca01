package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"collectes/internal/config"
	"collectes/internal/importer"
	"collectes/internal/jobs"
)

// ImportRequest 导入选项
type ImportRequest struct {
	Force   bool  `json:"force"`   // 已导入的文件也重新导入
	Rebuild *bool `json:"rebuild"` // 为空时使用配置
}

func (h *Handler) importOptions(force bool, rebuild *bool) importer.ImportOptions {
	opts := importer.ImportOptions{
		Force:   force || h.cfg.Import.Force,
		Rebuild: h.cfg.Import.Rebuild,
		BatchID: uuid.NewString(),
	}
	if rebuild != nil {
		opts.Rebuild = *rebuild
	}
	return opts
}

func formBool(c *gin.Context, key string) *bool {
	v := strings.TrimSpace(c.PostForm(key))
	if v == "" {
		return nil
	}
	b := v == "true" || v == "1"
	return &b
}

// saveUploads 上传文件保存到 data/uploads/<batch>/
func (h *Handler) saveUploads(c *gin.Context, batchID string) ([]string, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的表单数据"})
		return nil, false
	}
	files := form.File["file"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未找到上传文件"})
		return nil, false
	}

	dir := config.GetDataPath(h.cfg, "uploads", batchID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建上传目录失败"})
		return nil, false
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		dst := filepath.Join(dir, filepath.Base(fh.Filename))
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "保存文件失败"})
			return nil, false
		}
		paths = append(paths, dst)
	}
	return paths, true
}

// Import 上传文件并以后台任务导入
// POST /api/import
func (h *Handler) Import(c *gin.Context) {
	opts := h.importOptions(c.PostForm("force") == "true", formBool(c, "rebuild"))
	paths, ok := h.saveUploads(c, opts.BatchID)
	if !ok {
		return
	}
	opts.Files = paths
	h.submitImport(c, opts)
}

// ImportInput 导入输入目录中的全部工作簿
// POST /api/import/input
func (h *Handler) ImportInput(c *gin.Context) {
	var req ImportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
			return
		}
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

	opts := h.importOptions(req.Force, req.Rebuild)
	opts.Files = files
	h.submitImport(c, opts)
}

func (h *Handler) submitImport(c *gin.Context, opts importer.ImportOptions) {
	id := h.jobs.Submit("import", h.importJob(opts))
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":   id,
		"batchId": opts.BatchID,
		"files":   len(opts.Files),
		"jobUrl":  fmt.Sprintf("%s/jobs/%s", apiPrefix(c), id),
	})
}

// importJob 把导入进度事件转换为任务日志与进度
func (h *Handler) importJob(opts importer.ImportOptions) jobs.Func {
	return func(rep *jobs.Reporter) (any, error) {
		rep.Log("[INFO] Ingestion démarrée: %d fichier(s)", len(opts.Files))
		rep.Progress(0, len(opts.Files))

		var report *importer.BatchReport
		for evt := range h.coord.Import(context.Background(), opts) {
			switch evt.Type {
			case importer.EventFileStart, importer.EventFileDone:
				rep.Log("[FICHIER] %s", evt.Message)
				if d, ok := evt.Data.(map[string]interface{}); ok && evt.Type == importer.EventFileDone {
					index, _ := d["index"].(int)
					total, _ := d["total"].(int)
					rep.Progress(index, total)
				}
			case importer.EventDone:
				report, _ = evt.Data.(*importer.BatchReport)
				if report != nil {
					rep.Progress(len(report.Files), len(opts.Files))
				}
				rep.Log("[INFO] %s", evt.Message)
			case importer.EventError:
				return nil, errors.New(evt.Message)
			default:
				rep.Log("[INFO] %s", evt.Message)
			}
		}
		if report == nil {
			return nil, errors.New("import finished without report")
		}
		return report, nil
	}
}

// ImportStream 上传文件并同步导入 (SSE 流式响应)
// POST /api/import/stream
func (h *Handler) ImportStream(c *gin.Context) {
	opts := h.importOptions(c.PostForm("force") == "true", formBool(c, "rebuild"))
	paths, ok := h.saveUploads(c, opts.BatchID)
	if !ok {
		return
	}
	opts.Files = paths

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "不支持流式响应"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	for event := range h.coord.Import(c.Request.Context(), opts) {
		eventData, err := json.Marshal(event)
		if err != nil {
			continue
		}
		// SSE 格式: data: {json}\n\n
		fmt.Fprintf(c.Writer, "data: %s\n\n", eventData)
		flusher.Flush()
	}
}

// GetJob 查询后台任务
// GET /api/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func apiPrefix(c *gin.Context) string {
	if strings.HasPrefix(c.Request.URL.Path, "/api/v1/") {
		return "/api/v1"
	}
	return "/api"
}
