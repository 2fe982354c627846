package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/eoflow/pkg/api"
	"github.com/LENAX/eoflow/pkg/cli/output"
	"github.com/LENAX/eoflow/pkg/core/events"
	"github.com/LENAX/eoflow/pkg/core/executor"
	"github.com/LENAX/eoflow/pkg/core/schedule"
	"github.com/LENAX/eoflow/pkg/metrics"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host         string
		port         int
		workflowPath string
		cronExpr     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动HTTP API服务",
		Long: `启动HTTP API服务，提供执行记录查询、Prometheus指标与WebSocket事件流。
同时指定 --workflow 和 --cron 时按Cron表达式周期性执行该工作流。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				output.Error(cmd.ErrOrStderr(), "初始化失败: %v", err)
				return err
			}
			defer a.close()

			bus := events.NewBus(a.log)
			defer bus.Close()
			collector := metrics.NewCollector()

			if workflowPath != "" && cronExpr != "" {
				scheduler, err := a.newScheduler(workflowPath, cronExpr, bus, collector)
				if err != nil {
					output.Error(cmd.ErrOrStderr(), "注册定时任务失败: %v", err)
					return err
				}
				scheduler.Start()
				defer scheduler.Stop()
			}

			cfg := api.DefaultServerConfig()
			cfg.Host, cfg.Port = a.cfg.EOFlow.API.Host, a.cfg.EOFlow.API.Port
			if host != "" {
				cfg.Host = host
			}
			if port > 0 {
				cfg.Port = port
			}
			server := api.NewAPIServer(api.Dependencies{
				Executions: a.repos.Stats,
				Events:     bus,
				Metrics:    collector.Handler(),
				Version:    Version,
				Logger:     a.log,
			}, cfg)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()
			output.Success(cmd.OutOrStdout(), "eoflow API 服务已启动: http://%s", server.Addr())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "监听地址，覆盖配置文件")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "监听端口，覆盖配置文件")
	cmd.Flags().StringVarP(&workflowPath, "workflow", "w", "", "定时执行的工作流定义文件")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron表达式（秒级精度）")
	return cmd
}

// newScheduler 注册工作流的定时批量执行
func (a *app) newScheduler(workflowPath, cronExpr string, bus *events.Bus, collector *metrics.Collector) (*schedule.CronScheduler, error) {
	wfCfg, wf, err := a.loadWorkflow(workflowPath, collector)
	if err != nil {
		return nil, err
	}
	exec, err := a.newExecutor(bus, collector)
	if err != nil {
		return nil, err
	}
	scheduler := schedule.NewCronScheduler(exec,
		schedule.WithLogger(a.log),
		schedule.WithCallback(func(job string, stats *executor.Statistics, err error) {
			if err != nil {
				a.log.WithError(err).WithField("job", job).Error("定时批量执行失败")
				return
			}
			a.log.WithField("job", job).WithField("execution_id", stats.ExecutionID).
				Info(fmt.Sprintf("定时批量执行完成，成功 %d/%d", stats.SuccessCount(), len(stats.Runs)))
		}),
	)
	inputs, err := runInputs(wfCfg)
	if err != nil {
		return nil, err
	}
	err = scheduler.Register(schedule.Job{
		Name:     wfCfg.Workflow.Name,
		CronExpr: cronExpr,
		Workflow: wf,
		Inputs:   func() []executor.RunInput { return inputs },
	})
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}
