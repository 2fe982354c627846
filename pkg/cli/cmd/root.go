// Package cmd eoflow 命令行入口
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootOptions 全局参数
type rootOptions struct {
	configPath string
	outputJSON bool
	logLevel   string
}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "eoflow",
		Short: "eoflow - 遥感数据处理流水线的任务图执行引擎",
		Long: `eoflow 按依赖关系把任务组织成有向无环图，对一组相互独立的输入批量执行。

支持的功能：
  - 执行工作流定义中的所有运行，并输出逐个运行的统计
  - 查看执行图的拓扑顺序与层级
  - 查询保存的执行统计
  - 启动HTTP API服务（执行记录、指标、事件流）

使用示例：
  # 执行工作流
  eoflow run -w workflow.yaml -c engine.yaml

  # 查看执行图
  eoflow graph -w workflow.yaml

  # 启动HTTP服务
  eoflow serve --port 8080`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "eoflow.yaml", "框架配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&opts.outputJSON, "json", "j", false, "使用JSON格式输出")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别，覆盖配置文件")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newGraphCmd(opts))
	rootCmd.AddCommand(newReportCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute 执行根命令
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
