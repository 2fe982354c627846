package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LENAX/eoflow/pkg/cli/output"
	"github.com/LENAX/eoflow/pkg/core/events"
	"github.com/LENAX/eoflow/pkg/core/executor"
	"github.com/LENAX/eoflow/pkg/metrics"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		workflowPath string
		concurrency  int
		failOnError  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "执行工作流定义中的所有运行",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				output.Error(cmd.ErrOrStderr(), "初始化失败: %v", err)
				return err
			}
			defer a.close()
			if concurrency > 0 {
				a.cfg.EOFlow.Execution.WorkerConcurrency = concurrency
			}

			collector := metrics.NewCollector()
			wfCfg, wf, err := a.loadWorkflow(workflowPath, collector)
			if err != nil {
				output.Error(cmd.ErrOrStderr(), "加载工作流失败: %v", err)
				return err
			}

			var bus *events.Bus
			if a.cfg.EOFlow.Events.Enabled {
				bus = events.NewBus(a.log)
				defer bus.Close()
				if err := logEvents(ctx, bus, a.log); err != nil {
					return err
				}
			}

			exec, err := a.newExecutor(bus, collector)
			if err != nil {
				return err
			}
			inputs, err := runInputs(wfCfg)
			if err != nil {
				output.Error(cmd.ErrOrStderr(), "生成运行输入失败: %v", err)
				return err
			}
			stats, err := exec.RunAll(ctx, wf, inputs)
			if err != nil {
				output.Error(cmd.ErrOrStderr(), "执行失败: %v", err)
				return err
			}

			if opts.outputJSON {
				if err := output.PrintJSON(cmd.OutOrStdout(), stats); err != nil {
					return err
				}
			} else {
				printStatistics(cmd, stats)
			}

			failed := len(stats.Runs) - stats.SuccessCount()
			if failOnError && failed > 0 {
				return fmt.Errorf("%d 个运行失败", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&workflowPath, "workflow", "w", "", "工作流定义文件路径")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "并发运行数，覆盖配置文件")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "存在失败的运行时返回非零退出码")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

// logEvents 把运行事件写入日志
func logEvents(ctx context.Context, bus *events.Bus, log logrus.FieldLogger) error {
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for ev := range ch {
			log.WithFields(logrus.Fields{
				"event": ev.Type,
				"run":   ev.RunName,
				"node":  ev.FailedNode,
			}).Debug("运行事件")
		}
	}()
	return nil
}

// printStatistics 以表格输出批量执行统计
func printStatistics(cmd *cobra.Command, stats *executor.Statistics) {
	out := cmd.OutOrStdout()
	table := output.NewTable([]string{"#", "RUN", "STATUS", "DURATION", "ATTEMPTS", "FAILED_NODE", "ERROR"})
	for _, r := range stats.Runs {
		failedNode := "-"
		if r.FailedNode != "" {
			failedNode = r.FailedNode
		}
		errMsg := "-"
		if r.Error != "" {
			errMsg = r.Error
		}
		table.AddRow([]string{
			strconv.Itoa(r.Index),
			r.Name,
			output.Status(r.Status()),
			r.Duration().String(),
			strconv.Itoa(r.Attempts),
			failedNode,
			errMsg,
		})
	}
	table.Render(out)

	failed := len(stats.Runs) - stats.SuccessCount()
	summary := fmt.Sprintf("执行 %s: %d 个运行，成功 %d，失败 %d，耗时 %s",
		stats.ExecutionID, len(stats.Runs), stats.SuccessCount(), failed, stats.Duration())
	if failed > 0 {
		output.Warning(out, "%s", summary)
	} else {
		output.Success(out, "%s", summary)
	}
}
