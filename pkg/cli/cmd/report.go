package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/eoflow/pkg/api/handler"
	"github.com/LENAX/eoflow/pkg/cli/output"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "report [execution-id]",
		Short: "查询保存的执行统计",
		Long:  `不带参数时列出最近的批量执行；指定执行ID时输出逐个运行的统计。`,
		Args:  cobra.MaximumNArgs(1),
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
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				stats, err := a.repos.Stats.GetStatistics(ctx, args[0])
				if err != nil {
					output.Error(cmd.ErrOrStderr(), "查询失败: %v", err)
					return err
				}
				if opts.outputJSON {
					return output.PrintJSON(out, handler.ToExecutionDetail(stats))
				}
				printStatistics(cmd, stats)
				return nil
			}

			rows, err := a.repos.Stats.ListExecutions(ctx, limit)
			if err != nil {
				output.Error(cmd.ErrOrStderr(), "查询失败: %v", err)
				return err
			}
			if opts.outputJSON {
				return output.PrintJSON(out, rows)
			}
			if len(rows) == 0 {
				output.Info(out, "暂无执行记录")
				return nil
			}
			table := output.NewTable([]string{"EXECUTION_ID", "WORKFLOW", "STARTED", "DURATION", "RUNS", "SUCCEEDED"})
			for _, r := range rows {
				table.AddRow([]string{
					r.ID,
					r.WorkflowName,
					time.Unix(0, r.StartedAt).Format("2006-01-02 15:04:05"),
					(time.Duration(r.DurationMs) * time.Millisecond).String(),
					strconv.Itoa(r.RunCount),
					strconv.Itoa(r.SuccessCount),
				})
			}
			table.Render(out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "列出的记录数")
	return cmd
}
