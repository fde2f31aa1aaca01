package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrJobNotFound 任务不存在
var ErrJobNotFound = errors.New("job not found")

// ErrJobStarted 任务已启动
var ErrJobStarted = errors.New("job already started")

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Done 是否已结束
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress 任务进度
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// Job 后台任务快照
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Progress   Progress   `json:"progress"`
	Logs       []string   `json:"logs"`
	Result     any        `json:"result"`
	Error      string     `json:"error,omitempty"`
}

func (j *Job) clone() Job {
	c := *j
	c.Logs = append([]string(nil), j.Logs...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// Func 任务函数，返回值作为任务结果
type Func func(r *Reporter) (any, error)

// Registry 进程内任务表，只追加不清理，不支持取消
type Registry struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry 创建任务表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		jobs:   make(map[string]*Job),
		logger: logger,
		now:    time.Now,
	}
}

// Create 创建 pending 状态的任务
func (r *Registry) Create(kind string) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id] = &Job{
		ID:        id,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: r.now(),
		Logs:      []string{},
	}
	return id
}

// Get 返回任务副本
func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%s: %w", id, ErrJobNotFound)
	}
	return j.clone(), nil
}

// Start 在后台 goroutine 中运行任务
func (r *Registry) Start(id string, fn Func) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrJobNotFound)
	}
	if j.Status != StatusPending {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrJobStarted)
	}
	now := r.now()
	j.Status = StatusRunning
	j.StartedAt = &now
	kind := j.Kind
	r.mu.Unlock()

	logger := r.logger.With(zap.String("job_id", id), zap.String("kind", kind))
	logger.Info("job started")

	go func() {
		rep := &Reporter{registry: r, id: id}
		result, err := run(fn, rep)
		r.finish(id, result, err)
		if err != nil {
			logger.Error("job failed", zap.Error(err))
			return
		}
		logger.Info("job completed")
	}()
	return nil
}

// Submit 创建并启动任务
func (r *Registry) Submit(kind string, fn Func) string {
	id := r.Create(kind)
	_ = r.Start(id, fn)
	return id
}

func run(fn Func, rep *Reporter) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(rep)
}

func (r *Registry) finish(id string, result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := r.jobs[id]
	now := r.now()
	j.FinishedAt = &now
	if err != nil {
		j.Status = StatusFailed
		j.Error = err.Error()
		j.Logs = append(j.Logs, "[ERREUR] "+err.Error())
		return
	}
	j.Status = StatusCompleted
	j.Result = result
}

// Reporter 任务运行中上报日志与进度
type Reporter struct {
	registry *Registry
	id       string
}

// ID 任务 ID
func (p *Reporter) ID() string {
	return p.id
}

// Log 追加日志
func (p *Reporter) Log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	if j, ok := p.registry.jobs[p.id]; ok {
		j.Logs = append(j.Logs, msg)
	}
}

// Progress 更新进度
func (p *Reporter) Progress(current, total int) {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	j, ok := p.registry.jobs[p.id]
	if !ok {
		return
	}
	j.Progress.Current = current
	j.Progress.Total = total
	j.Progress.Percent = 0
	if total > 0 {
		j.Progress.Percent = current * 100 / total
	}
}
