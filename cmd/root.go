package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-chat/config"
	"github.com/ByLCY/papyrus-chat/exporter"
	"github.com/ByLCY/papyrus-chat/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// RunFunc 执行一次导出，测试中可以替换。
type RunFunc func(ctx context.Context, cfg config.Config, log *zap.Logger) error

// flag 名到配置键的映射。
var flagKeys = map[string]string{
	"user-file":    "user_file",
	"output":       "output",
	"avatars":      "avatars",
	"speech":       "speech",
	"quality":      "quality",
	"debug":        "debug",
	"theme":        "theme",
	"layout-json":  "layout_json",
	"metrics-file": "metrics_file",
	"log-file":     "log_file",
	"timezone":     "timezone",
	"page-numbers": "layout.page_numbers",
	"workers":      "media.workers",
}

// NewRootCommand 构建根命令，参数经 viper 与配置文件、环境变量合并。
func NewRootCommand(run RunFunc) *cobra.Command {
	v := viper.New()
	var configPath string

	root := &cobra.Command{
		Use:           "papyrus-chat <transcript.json>",
		Short:         "把微信聊天记录导出为带书签的 PDF",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v.Set("transcript", args[0])
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(logger.Options{Debug: cfg.Debug, File: cfg.LogFile})
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg, log); err != nil {
				log.Error("导出失败", zap.Error(err))
				return err
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.Flags()
	flags.StringP("user-file", "u", "", "用户信息 JSON 文件")
	flags.StringP("output", "o", "wechat.pdf", "PDF 输出路径")
	flags.BoolP("avatars", "a", false, "下载并绘制头像")
	flags.BoolP("speech", "s", true, "语音转文字")
	flags.IntP("quality", "q", 60, "图片压缩质量 (1-100)")
	flags.BoolP("debug", "d", false, "输出调试日志")
	flags.String("theme", "", "主题文件，未指定时使用内置主题")
	flags.String("layout-json", "", "排版结果 JSON 输出路径")
	flags.String("metrics-file", "", "指标输出路径（textfile 格式）")
	flags.String("log-file", "", "额外写入 JSON 日志的文件")
	flags.String("timezone", "local", "时间戳展示时区")
	flags.Bool("page-numbers", false, "在页脚绘制页码")
	flags.Int("workers", 4, "媒体预取并发数")
	flags.StringVar(&configPath, "config", "", "YAML 配置文件")
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return root
}

func runExport(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	summary, err := exporter.Run(ctx, cfg, log)
	if err != nil {
		return err
	}
	if summary.OutlineKept != "" {
		fmt.Printf("已生成 PDF（无书签）：%s\n", summary.OutlineKept)
		return nil
	}
	fmt.Printf("已生成 PDF：%s（%d 页）\n", summary.Output, summary.Pages)
	return nil
}

// Execute 由 main.main 调用，出错时以状态码 1 退出。
func Execute() {
	if err := NewRootCommand(runExport).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
