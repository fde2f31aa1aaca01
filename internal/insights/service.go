package insights

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"collectes/internal/model"
	"collectes/internal/store"
)

// ErrUnknownKind 未知的统计类型
var ErrUnknownKind = errors.New("unknown insight kind")

// 统计类型
const (
	KindTimeSeries      = "timeseries"
	KindCategories      = "categories"
	KindFluxOrientation = "flux-orientation"
	KindAnomalies       = "anomalies"
	KindMissingDays     = "missing-days"
	KindComparison      = "comparison"
	KindDuplicates      = "duplicates"
)

// Kinds 全部统计类型
var Kinds = []string{
	KindTimeSeries, KindCategories, KindFluxOrientation, KindAnomalies,
	KindMissingDays, KindComparison, KindDuplicates,
}

// DefaultLimit anomalies / duplicates 的默认条数
const DefaultLimit = 10

// Query 统计参数
type Query struct {
	Year        int
	Granularity Granularity
	Limit       int
}

// Service 基于已入库记录的补充统计
type Service struct {
	store  *store.Store
	logger *zap.Logger
}

// NewService 创建统计服务
func NewService(st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

func (s *Service) records(year int) ([]model.NormalizedRecord, error) {
	records, err := s.store.ListRecords(year)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return records, nil
}

// Compute 按类型计算统计结果
func (s *Service) Compute(kind string, q Query) (any, error) {
	records, err := s.records(q.Year)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.logger.Debug("insight", zap.String("kind", kind), zap.Int("year", q.Year), zap.Int("records", len(records)))
	switch kind {
	case KindTimeSeries:
		g := q.Granularity
		if g == "" {
			g = Day
		}
		return TimeSeries(records, g), nil
	case KindCategories:
		return CategoryStats(records), nil
	case KindFluxOrientation:
		return FluxOrientationMatrix(records), nil
	case KindAnomalies:
		return Anomalies(records, limit), nil
	case KindMissingDays:
		return FindMissingDays(records), nil
	case KindComparison:
		return SiteComparison(records), nil
	case KindDuplicates:
		return Duplicates(records, limit), nil
	default:
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
}

// Duplicates 某年的重复记录组
func (s *Service) Duplicates(year, limit int) ([]DuplicateGroup, error) {
	records, err := s.records(year)
	if err != nil {
		return nil, err
	}
	return Duplicates(records, limit), nil
}
