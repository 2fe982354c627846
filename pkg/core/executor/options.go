package executor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LENAX/eoflow/pkg/core/events"
	"github.com/LENAX/eoflow/pkg/core/task"
)

// RetryPolicy 运行级重试策略
// 失败的运行从输入容器的深拷贝重新开始；超时不重试
type RetryPolicy struct {
	MaxAttempts int           // 最大尝试次数（包含第一次），<=1 表示不重试
	Delay       time.Duration // 第一次重试前的等待时间，之后每次翻倍
	MaxDelay    time.Duration // 等待时间上限，0 表示不设上限
}

// backoff 第 attempt 次失败后的等待时间
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// MetricsRecorder 运行级指标
type MetricsRecorder interface {
	RunStarted()
	RunFinished(status string, d time.Duration)
}

// StatisticsRepository 统计持久化
type StatisticsRepository interface {
	SaveStatistics(ctx context.Context, stats *Statistics) error
}

// Option Executor 配置项
type Option func(*Executor)

// WithConcurrency 设置并发运行数，<=1 时顺序执行
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = n }
}

// WithRunTimeout 设置单次运行超时，0 表示不限
func WithRunTimeout(d time.Duration) Option {
	return func(e *Executor) { e.runTimeout = d }
}

// WithRetry 设置重试策略
func WithRetry(p RetryPolicy) Option {
	return func(e *Executor) { e.retry = p }
}

// WithPatchStore 设置运行边界的加载/保存钩子
func WithPatchStore(s task.PatchStore) Option {
	return func(e *Executor) { e.store = s }
}

// WithPublisher 设置事件发布者
func WithPublisher(p events.Publisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// WithMetrics 设置指标收集器
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithStatisticsRepository 设置统计持久化
func WithStatisticsRepository(r StatisticsRepository) Option {
	return func(e *Executor) { e.repo = r }
}

// WithLogger 设置日志器
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}
