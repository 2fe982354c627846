// Package schedule 按 cron 表达式周期性地触发批量执行
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/LENAX/eoflow/internal/logger"
	"github.com/LENAX/eoflow/pkg/core/engine"
	"github.com/LENAX/eoflow/pkg/core/executor"
)

// Job 定时批量任务（对外导出）
type Job struct {
	Name     string
	CronExpr string // 支持秒级精度，例如 "0 */5 * * * *"
	Workflow *engine.Workflow
	// Inputs 每次触发时生成本批次的输入
	Inputs func() []executor.RunInput
}

// Callback 批次结束后的回调，err 只在参数非法时非空
type Callback func(job string, stats *executor.Statistics, err error)

// CronScheduler 定时调度器（对外导出）
type CronScheduler struct {
	cron     *cron.Cron
	parser   cron.Parser
	executor *executor.Executor
	callback Callback
	jobs     map[string]Job
	entries  map[string]cron.EntryID
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	log      logrus.FieldLogger
}

// Option 调度器配置项
type Option func(*CronScheduler)

// WithCallback 设置批次结束回调
func WithCallback(cb Callback) Option {
	return func(cs *CronScheduler) { cs.callback = cb }
}

// WithLogger 设置日志器
func WithLogger(l logrus.FieldLogger) Option {
	return func(cs *CronScheduler) {
		if l != nil {
			cs.log = l
		}
	}
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(exec *executor.Executor, opts ...Option) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cs := &CronScheduler{
		cron:     cron.New(cron.WithSeconds()), // 支持秒级精度
		parser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		executor: exec,
		jobs:     make(map[string]Job),
		entries:  make(map[string]cron.EntryID),
		ctx:      ctx,
		cancel:   cancel,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

// Register 注册定时任务（对外导出）
func (cs *CronScheduler) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("定时任务名称不能为空")
	}
	if job.Workflow == nil {
		return fmt.Errorf("定时任务 %s 未设置工作流", job.Name)
	}
	if job.CronExpr == "" {
		return fmt.Errorf("定时任务 %s 未设置Cron表达式", job.Name)
	}
	if _, err := cs.parser.Parse(job.CronExpr); err != nil {
		return fmt.Errorf("定时任务 %s 的Cron表达式无效: %w", job.Name, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.jobs[job.Name]; exists {
		return fmt.Errorf("定时任务 %s 已注册", job.Name)
	}

	name := job.Name
	entryID, err := cs.cron.AddFunc(job.CronExpr, func() {
		if err := cs.Trigger(name); err != nil {
			cs.log.WithError(err).WithField("job", name).Warn("定时任务触发失败")
		}
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	cs.jobs[name] = job
	cs.entries[name] = entryID

	cs.log.WithFields(logrus.Fields{"job": name, "cron": job.CronExpr}).Info("已注册定时任务")
	return nil
}

// Unregister 取消注册（对外导出）
func (cs *CronScheduler) Unregister(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[name]
	if !exists {
		return fmt.Errorf("定时任务 %s 未注册", name)
	}
	cs.cron.Remove(entryID)
	delete(cs.jobs, name)
	delete(cs.entries, name)

	cs.log.WithField("job", name).Info("已取消注册定时任务")
	return nil
}

// Trigger 立即执行一次定时任务，阻塞到批次结束（对外导出）
func (cs *CronScheduler) Trigger(name string) error {
	cs.mu.RLock()
	job, exists := cs.jobs[name]
	cs.mu.RUnlock()
	if !exists {
		return fmt.Errorf("定时任务 %s 未注册", name)
	}

	var inputs []executor.RunInput
	if job.Inputs != nil {
		inputs = job.Inputs()
	}
	cs.log.WithFields(logrus.Fields{"job": name, "runs": len(inputs)}).Info("触发定时任务")

	stats, err := cs.executor.RunAll(cs.ctx, job.Workflow, inputs)
	if cs.callback != nil {
		cs.callback(name, stats, err)
	}
	return err
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	cs.log.Info("定时调度器已启动")
}

// Stop 停止调度器，并等待正在执行的批次结束（对外导出）
func (cs *CronScheduler) Stop() {
	done := cs.cron.Stop()
	cs.cancel()
	<-done.Done()
	cs.log.Info("定时调度器已停止")
}

// Jobs 已注册的任务名称，按名称排序（对外导出）
func (cs *CronScheduler) Jobs() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.jobs))
	for name := range cs.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
