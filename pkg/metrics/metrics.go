// Package metrics 提供运行与节点级别的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 运行状态标签值
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// Collector 指标收集器（对外导出）
// 使用独立的 Registry，同一进程可以创建多个互不影响的实例。
// 所有方法对 nil 接收者安全，未启用指标时可以直接传 nil。
type Collector struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	nodeDuration    *prometheus.HistogramVec
	resultsReleased prometheus.Counter
	activeRuns      prometheus.Gauge
	nodeFailures    *prometheus.CounterVec
}

// NewCollector 创建并注册所有指标
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eoflow_runs_total",
				Help: "Total number of workflow runs by final status.",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eoflow_run_duration_seconds",
				Help:    "Duration of a single workflow run including retries, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eoflow_node_duration_seconds",
				Help:    "Duration of a single node execution, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		resultsReleased: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eoflow_results_released_total",
				Help: "Total number of intermediate results released after their last consumer ran.",
			},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eoflow_active_runs",
				Help: "Number of workflow runs currently executing.",
			},
		),
		nodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eoflow_node_failures_total",
				Help: "Total number of failed node executions.",
			},
			[]string{"node"},
		),
	}

	c.registry.MustRegister(c.runsTotal, c.runDuration, c.nodeDuration, c.resultsReleased, c.activeRuns, c.nodeFailures)

	for _, status := range []string{StatusSucceeded, StatusFailed, StatusTimeout} {
		c.runsTotal.WithLabelValues(status)
	}
	return c
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler 返回 /metrics 的 HTTP handler
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RunStarted 记录运行开始
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.activeRuns.Inc()
}

// RunFinished 记录运行结束
func (c *Collector) RunFinished(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.activeRuns.Dec()
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.Observe(d.Seconds())
}

// OnNodeStart 节点开始
func (c *Collector) OnNodeStart(string, string) {}

// OnNodeFinish 记录节点耗时与失败
func (c *Collector) OnNodeFinish(_, nodeID string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.nodeDuration.WithLabelValues(nodeID).Observe(d.Seconds())
	if err != nil {
		c.nodeFailures.WithLabelValues(nodeID).Inc()
	}
}

// OnRelease 记录中间结果释放
func (c *Collector) OnRelease(string, string) {
	if c == nil {
		return
	}
	c.resultsReleased.Inc()
}
