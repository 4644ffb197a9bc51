package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"FaucetPilot/internal/config"
	"FaucetPilot/pkg/logger"
)

// main 是 FaucetPilot 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "faucetpilotd 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "faucetpilotd",
		Short:         "Daily task automation for Cypher testnet accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "配置文件路径，默认读取 $"+config.EnvConfigPath)

	run := newRunCmd()
	root.AddCommand(run, newDispatchCmd(), newWorkerCmd(), newWalletCmd())
	// 不带子命令时等同于 run。
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())
	return root
}

// loadConfig 读取配置并初始化日志。
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}
