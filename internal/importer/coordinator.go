package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collectes/internal/calculator"
	"collectes/internal/model"
	"collectes/internal/parser"
	"collectes/internal/store"
	"collectes/internal/taxonomy"
)

// ErrUnreadableFile 文件无法读取或不是有效的工作簿
var ErrUnreadableFile = errors.New("unreadable file")

// 文件跳过原因
const (
	ReasonAlreadyImported = "already_imported"
	ReasonNoValidRows     = "no_valid_rows"
)

// 进度事件类型
const (
	EventStart        = "start"
	EventFileStart    = "file_start"
	EventSheetDone    = "sheet_done"
	EventSheetSkipped = "sheet_skipped"
	EventFileDone     = "file_done"
	EventRebuild      = "rebuild"
	EventDone         = "done"
	EventError        = "error"
)

// Coordinator 导入协调器
type Coordinator struct {
	store  *store.Store
	calc   *calculator.Calculator
	logger *zap.Logger

	mu sync.Mutex // 同一时间只运行一批导入
}

// NewCoordinator 创建导入协调器
func NewCoordinator(store *store.Store, calc *calculator.Calculator, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		calc:   calc,
		logger: logger,
	}
}

// ImportOptions 导入选项
type ImportOptions struct {
	Files   []string
	Force   bool   // 已导入的文件也重新导入（整体替换）
	Rebuild bool   // 导入后重建受影响年份的聚合表
	BatchID string // 为空时自动生成
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	Type      string      `json:"type"`      // start/file_start/sheet_done/sheet_skipped/file_done/rebuild/done/error
	Message   string      `json:"message"`   // 事件消息
	Data      interface{} `json:"data"`      // 附加数据
	Timestamp time.Time   `json:"timestamp"` // 时间戳
}

// BatchReport 一批文件的导入结果
type BatchReport struct {
	BatchID  string                     `json:"batchId"`
	Files    []*parser.ImportReport     `json:"files"`
	Imported int                        `json:"imported"`
	Skipped  int                        `json:"skipped"`
	Errors   int                        `json:"errors"`
	Rebuilt  []calculator.RebuildResult `json:"rebuilt,omitempty"`
	Duration time.Duration              `json:"duration"`
}

// Import 执行导入，返回进度通道
func (c *Coordinator) Import(ctx context.Context, opts ImportOptions) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		report, err := c.run(ctx, opts, progressChan)
		if err != nil {
			c.sendFinal(ctx, progressChan, ProgressEvent{
				Type:      EventError,
				Message:   err.Error(),
				Data:      report,
				Timestamp: time.Now(),
			})
			return
		}
		c.sendFinal(ctx, progressChan, ProgressEvent{
			Type:      EventDone,
			Message:   fmt.Sprintf("导入完成: %d 导入, %d 跳过, %d 失败", report.Imported, report.Skipped, report.Errors),
			Data:      report,
			Timestamp: time.Now(),
		})
	}()

	return progressChan
}

// Run 同步执行导入；单个文件失败不会中断整批
func (c *Coordinator) Run(ctx context.Context, opts ImportOptions) (*BatchReport, error) {
	return c.run(ctx, opts, nil)
}

// IngestDir 列出目录下待导入的工作簿（按文件名排序）
func IngestDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx", ".xlsm":
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (c *Coordinator) run(ctx context.Context, opts ImportOptions, ch chan ProgressEvent) (*BatchReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()

	batchID := opts.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	report := &BatchReport{BatchID: batchID}
	logger := c.logger.With(zap.String("batch_id", batchID))

	c.sendProgress(ch, ProgressEvent{
		Type:    EventStart,
		Message: fmt.Sprintf("开始导入 %d 个文件", len(opts.Files)),
		Data: map[string]interface{}{
			"batch_id": batchID,
			"total":    len(opts.Files),
		},
		Timestamp: time.Now(),
	})

	affected := make(map[int]bool)
	for i, path := range opts.Files {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		c.sendProgress(ch, ProgressEvent{
			Type:    EventFileStart,
			Message: fmt.Sprintf("正在导入: %s", filepath.Base(path)),
			Data: map[string]interface{}{
				"filename": filepath.Base(path),
				"index":    i + 1,
				"total":    len(opts.Files),
			},
			Timestamp: time.Now(),
		})

		fr, years := c.importFile(path, opts.Force, batchID, logger, ch)
		report.Files = append(report.Files, fr)
		switch fr.Status {
		case parser.StatusImported:
			report.Imported++
			for _, y := range years {
				affected[y] = true
			}
		case parser.StatusSkipped:
			report.Skipped++
		default:
			report.Errors++
		}

		c.sendProgress(ch, ProgressEvent{
			Type:    EventFileDone,
			Message: fmt.Sprintf("%s: %s", fr.Filename, fr.Status),
			Data: map[string]interface{}{
				"filename":      fr.Filename,
				"status":        fr.Status,
				"reason":        fr.Reason,
				"imported_rows": fr.ImportedRows,
				"error_rows":    fr.ErrorRows,
				"index":         i + 1,
				"total":         len(opts.Files),
			},
			Timestamp: time.Now(),
		})
	}

	if opts.Rebuild && report.Imported > 0 && c.calc != nil {
		years := make([]int, 0, len(affected))
		for y := range affected {
			years = append(years, y)
		}
		sort.Ints(years)

		for _, y := range years {
			res, err := c.calc.Rebuild(y)
			if err != nil {
				report.Duration = time.Since(start)
				return report, fmt.Errorf("rebuild %d: %w", y, err)
			}
			report.Rebuilt = append(report.Rebuilt, *res)
			c.sendProgress(ch, ProgressEvent{
				Type:      EventRebuild,
				Message:   fmt.Sprintf("已重建 %d 年聚合表: %d 个单元", y, res.Cells),
				Data:      res,
				Timestamp: time.Now(),
			})
		}
	}

	report.Duration = time.Since(start)
	logger.Info("import batch finished",
		zap.Int("files", len(opts.Files)),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// importFile 导入单个文件，返回报告与受影响年份（含被替换的旧年份）
func (c *Coordinator) importFile(path string, force bool, batchID string, logger *zap.Logger, ch chan ProgressEvent) (*parser.ImportReport, []int) {
	start := time.Now()
	fr := &parser.ImportReport{Filename: filepath.Base(path)}
	logger = logger.With(zap.String("file", fr.Filename))

	fail := func(logID int64, err error) (*parser.ImportReport, []int) {
		fr.Status = parser.StatusError
		fr.Error = err.Error()
		fr.Duration = time.Since(start)
		logger.Error("import file failed", zap.Error(err))
		c.finishLog(logID, fr, logger)
		return fr, nil
	}

	hash, size, err := hashFile(path)
	if err != nil {
		return fail(0, fmt.Errorf("%w: %v", ErrUnreadableFile, err))
	}
	fr.FileHash = hash

	logID, err := c.store.CreateImportLog(batchID, fr.Filename, path, size, hash)
	if err != nil {
		logger.Warn("create import log failed", zap.Error(err))
	}

	var previousYears []int
	existing, err := c.store.FindImportFileByHash(hash)
	switch {
	case err == nil && !force:
		fr.Status = parser.StatusSkipped
		fr.Reason = ReasonAlreadyImported
		fr.FileID = existing.ID
		fr.Duration = time.Since(start)
		logger.Info("file already imported", zap.Int64("file_id", existing.ID))
		c.finishLog(logID, fr, logger)
		return fr, nil
	case err == nil:
		if previousYears, err = c.store.FileYears(existing.ID); err != nil {
			return fail(logID, err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return fail(logID, err)
	}

	wb, err := parser.ParseFile(path)
	if err != nil {
		return fail(logID, fmt.Errorf("%w: %v", ErrUnreadableFile, err))
	}

	fr.TotalSheets = len(wb.Sheets)
	for _, sheet := range wb.Sheets {
		c.recordSheet(fr, sheet, logID, logger, ch)
	}

	records, excluded := c.normalize(wb, fr, logger)
	if len(records) == 0 && len(excluded) == 0 {
		fr.Status = parser.StatusSkipped
		fr.Reason = ReasonNoValidRows
		fr.Duration = time.Since(start)
		c.finishLog(logID, fr, logger)
		return fr, nil
	}

	file := &model.ImportFile{
		BatchID:       batchID,
		Filename:      fr.Filename,
		FileHash:      hash,
		FileSize:      size,
		SheetCount:    fr.TotalSheets,
		SkippedSheets: fr.SkippedSheets,
		RulesVersion:  taxonomy.Version,
	}
	fileID, err := c.store.ReplaceFileImport(file, records, excluded)
	if err != nil {
		return fail(logID, err)
	}

	fr.FileID = fileID
	fr.Status = parser.StatusImported
	fr.Duration = time.Since(start)
	logger.Info("file imported",
		zap.Int64("file_id", fileID),
		zap.Int("rows", fr.ImportedRows),
		zap.Int("excluded", fr.ErrorRows),
		zap.Float64("weight_kg", fr.ImportedKg),
		zap.Ints("years", fr.Years),
	)
	c.finishLog(logID, fr, logger)

	return fr, mergeYears(fr.Years, previousYears)
}

// normalize 应用站点与品类规则，统计未识别站点
func (c *Coordinator) normalize(wb *parser.WorkbookResult, fr *parser.ImportReport, logger *zap.Logger) ([]model.NormalizedRecord, []model.ExcludedRow) {
	raws := wb.Records()
	records := make([]model.NormalizedRecord, 0, len(raws))
	years := make(map[int]bool)
	var weight calculator.Mass

	for _, raw := range raws {
		rec := model.Normalize(raw)
		if rec.SiteMatch == taxonomy.SiteMatchFallback {
			if fr.UnmappedSites == nil {
				fr.UnmappedSites = make(map[string]int)
			}
			fr.UnmappedSites[rec.LocationRaw]++
		}
		years[rec.Year] = true
		weight = weight.Add(calculator.MassOf(rec.WeightKg))
		records = append(records, rec)
	}

	// 日期无效的行归入文件唯一的年份，否则年份未知
	fileYear := model.FileYear(records)
	excluded := wb.Excluded()
	for i := range excluded {
		if excluded[i].Year == 0 {
			excluded[i].Year = fileYear
		}
		if excluded[i].Year > 0 {
			years[excluded[i].Year] = true
		}
		logger.Debug("row excluded",
			zap.String("sheet", excluded[i].SourceSheet),
			zap.Int("row", excluded[i].RowIndex),
			zap.String("reason", string(excluded[i].Reason)),
			zap.String("date_raw", excluded[i].DateRaw),
			zap.String("weight_raw", excluded[i].WeightRaw),
		)
	}

	for raw, n := range fr.UnmappedSites {
		logger.Warn("unmapped site", zap.String("site_raw", raw), zap.Int("rows", n), zap.String("site", string(taxonomy.DefaultSite)))
	}

	fr.ImportedKg = weight.Float64()
	for y := range years {
		fr.Years = append(fr.Years, y)
	}
	sort.Ints(fr.Years)
	return records, excluded
}

// recordSheet 记录 Sheet 处理结果
func (c *Coordinator) recordSheet(fr *parser.ImportReport, result parser.ParseResult, logID int64, logger *zap.Logger, ch chan ProgressEvent) {
	fr.Sheets = append(fr.Sheets, result)

	if result.Status == parser.StatusImported {
		fr.ImportedSheets++
		fr.ImportedRows += result.ImportedRows
	} else {
		fr.SkippedSheets++
	}
	fr.ErrorRows += result.ErrorRows
	fr.TotalRows += result.ImportedRows + result.ErrorRows

	if logID > 0 {
		missing := make([]string, len(result.Missing))
		for i, m := range result.Missing {
			missing[i] = string(m)
		}
		if err := c.store.InsertSheetMeta(model.SheetMeta{
			ImportLogID:  logID,
			SourceFile:   fr.Filename,
			SheetName:    result.SheetName,
			SheetType:    string(result.SheetType),
			Status:       result.Status,
			ImportedRows: result.ImportedRows,
			ErrorRows:    result.ErrorRows,
			BlankRows:    result.BlankRows,
			MissingJSON:  store.BuildColumnsJSON(missing),
			ErrorMessage: strings.Join(result.Errors, "; "),
		}); err != nil {
			logger.Warn("insert sheet meta failed", zap.String("sheet", result.SheetName), zap.Error(err))
		}
	}

	evt := ProgressEvent{
		Type:    EventSheetDone,
		Message: fmt.Sprintf("Sheet \"%s\" 导入: %d 行, 剔除 %d 行", result.SheetName, result.ImportedRows, result.ErrorRows),
		Data: map[string]interface{}{
			"filename":      fr.Filename,
			"sheet_name":    result.SheetName,
			"imported_rows": result.ImportedRows,
			"error_rows":    result.ErrorRows,
		},
		Timestamp: time.Now(),
	}
	if result.Status != parser.StatusImported {
		evt.Type = EventSheetSkipped
		evt.Message = fmt.Sprintf("跳过 Sheet \"%s\": %s", result.SheetName, strings.Join(result.Errors, "; "))
		logger.Info("sheet skipped", zap.String("sheet", result.SheetName), zap.Strings("errors", result.Errors))
	}
	c.sendProgress(ch, evt)
}

func (c *Coordinator) finishLog(logID int64, fr *parser.ImportReport, logger *zap.Logger) {
	if logID == 0 {
		return
	}
	if err := c.store.UpdateImportLog(model.ImportLog{
		ID:             logID,
		FileHash:       fr.FileHash,
		Status:         fr.Status,
		Reason:         fr.Reason,
		TotalSheets:    fr.TotalSheets,
		ImportedSheets: fr.ImportedSheets,
		SkippedSheets:  fr.SkippedSheets,
		ImportedRows:   fr.ImportedRows,
		ErrorRows:      fr.ErrorRows,
		ErrorMessage:   fr.Error,
	}); err != nil {
		logger.Warn("update import log failed", zap.Error(err))
	}
}

// sendProgress 发送进度事件
func (c *Coordinator) sendProgress(ch chan ProgressEvent, event ProgressEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- event:
	default:
		// 通道已满，丢弃事件
	}
}

// sendFinal 结束事件不丢弃，除非调用方已放弃
func (c *Coordinator) sendFinal(ctx context.Context, ch chan ProgressEvent, event ProgressEvent) {
	select {
	case ch <- event:
	case <-ctx.Done():
	}
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func mergeYears(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, y := range append(append([]int(nil), a...), b...) {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Ints(out)
	return out
}
