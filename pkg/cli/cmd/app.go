package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/LENAX/eoflow/internal/logger"
	istorage "github.com/LENAX/eoflow/internal/storage"
	"github.com/LENAX/eoflow/pkg/config"
	"github.com/LENAX/eoflow/pkg/core/dag"
	"github.com/LENAX/eoflow/pkg/core/engine"
	"github.com/LENAX/eoflow/pkg/core/events"
	"github.com/LENAX/eoflow/pkg/core/executor"
	"github.com/LENAX/eoflow/pkg/core/task"
	"github.com/LENAX/eoflow/pkg/metrics"
	"github.com/LENAX/eoflow/pkg/storage"
)

// app 命令共享的运行环境
type app struct {
	cfg      *config.EngineConfig
	log      *logrus.Logger
	repos    *istorage.Repositories
	registry *task.Registry
}

// newApp 加载配置、打开存储并注册内置任务
func newApp(ctx context.Context, opts *rootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadEngineConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.EOFlow.General.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	log := logger.New(level, logOut)

	permission, err := storage.ParseOverwritePermission(cfg.EOFlow.Storage.OverwritePermission)
	if err != nil {
		return nil, err
	}
	db := cfg.EOFlow.Storage.Database
	repos, err := istorage.NewRepositories(ctx, db.Type, db.DSN, istorage.PoolConfig{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}, permission)
	if err != nil {
		return nil, err
	}

	registry := task.NewRegistry()
	if err := task.RegisterBuiltins(registry, repos.Patches); err != nil {
		repos.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, repos: repos, registry: registry}, nil
}

func (a *app) close() {
	if err := a.repos.Close(); err != nil {
		a.log.WithError(err).Warn("关闭数据库失败")
	}
}

// loadWorkflow 读取工作流定义并构建执行图
func (a *app) loadWorkflow(path string, observer engine.Observer) (*config.WorkflowConfig, *engine.Workflow, error) {
	wfCfg, err := config.LoadWorkflowConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if err := config.ValidateWorkflowConfig(wfCfg, a.registry); err != nil {
		return nil, nil, err
	}
	specs, err := wfCfg.TaskSpecs(a.registry)
	if err != nil {
		return nil, nil, err
	}
	g, err := dag.Build(specs)
	if err != nil {
		return nil, nil, err
	}
	opts := []engine.Option{engine.WithName(wfCfg.Workflow.Name), engine.WithLogger(a.log)}
	if observer != nil {
		opts = append(opts, engine.WithObserver(observer))
	}
	wf, err := engine.New(g, opts...)
	if err != nil {
		return nil, nil, err
	}
	return wfCfg, wf, nil
}

// newExecutor 按配置创建执行器，bus 和 collector 可以为空
func (a *app) newExecutor(bus *events.Bus, collector *metrics.Collector) (*executor.Executor, error) {
	exec := a.cfg.EOFlow.Execution
	opts := []executor.Option{
		executor.WithConcurrency(a.cfg.GetWorkerConcurrency()),
		executor.WithRunTimeout(exec.RunTimeout),
		executor.WithRetry(executor.RetryPolicy{
			MaxAttempts: a.cfg.GetRetryAttempts(),
			Delay:       exec.Retry.Delay,
			MaxDelay:    exec.Retry.MaxDelay,
		}),
		executor.WithPatchStore(a.repos.Patches),
		executor.WithStatisticsRepository(a.repos.Stats),
		executor.WithLogger(a.log),
	}
	if bus != nil {
		opts = append(opts, executor.WithPublisher(bus))
	}
	if collector != nil {
		opts = append(opts, executor.WithMetrics(collector))
	}
	e, err := executor.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("创建执行器失败: %w", err)
	}
	return e, nil
}

// runInputs 工作流定义中没有运行时，执行一次空输入
func runInputs(wfCfg *config.WorkflowConfig) ([]executor.RunInput, error) {
	inputs, err := wfCfg.RunInputs()
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		inputs = []executor.RunInput{{}}
	}
	return inputs, nil
}
