package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"FaucetPilot/internal/api"
	"FaucetPilot/internal/observability/metrics"
	"FaucetPilot/internal/task"
	"FaucetPilot/pkg/logger"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every roster account in this process until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			once, _ := cmd.Flags().GetBool("once")
			return runSupervisor(cmd, once)
		},
	}
	cmd.Flags().Bool("once", false, "每个账户只运行一个周期，不等待零点轮换")
	return cmd
}

func runSupervisor(cmd *cobra.Command, once bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := buildApp(ctx, cfg, limitFor(once))
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := loadRoster(ctx, a.roster)
	if err != nil {
		return err
	}

	supervisor := task.NewSupervisor(a.orchestrator, a.recorder,
		task.WithLaunchDelay(cfg.Supervisor.LaunchDelay.Std()))

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	g.Go(func() error {
		// 所有执行单元结束后一并关闭 HTTP 服务。
		defer stopServing()
		return ignoreCancel(supervisor.RunAll(gctx, accounts))
	})
	startHTTP(serveCtx, g, a)
	return g.Wait()
}

func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Publish every roster account to the dispatch queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if err := requireSharedQueue(cfg.Queue); err != nil {
				return err
			}

			roster, err := openRoster(ctx, cfg.Accounts)
			if err != nil {
				return err
			}
			defer roster.Close()
			accounts, err := loadRoster(ctx, roster)
			if err != nil {
				return err
			}

			queue, err := openQueue(ctx, cfg.Queue)
			if err != nil {
				return err
			}
			defer queue.Close()

			n, err := task.NewDispatcher(queue, cfg.Supervisor.LaunchDelay.Std(), nil).Dispatch(ctx, accounts)
			if err != nil {
				return fmt.Errorf("已投递 %d/%d 个账户: %w", n, len(accounts), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dispatched %d accounts\n", n)
			return nil
		},
	}
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume dispatched accounts and run one execution unit per account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			once, _ := cmd.Flags().GetBool("once")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if err := requireSharedQueue(cfg.Queue); err != nil {
				return err
			}

			a, err := buildApp(ctx, cfg, limitFor(once))
			if err != nil {
				return err
			}
			defer a.Close()

			queue, err := openQueue(ctx, cfg.Queue)
			if err != nil {
				return err
			}
			defer queue.Close()

			worker := task.NewWorker(queue, a.roster, a.orchestrator, a.recorder,
				task.WithWorkerCount(cfg.Supervisor.WorkerCount))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return ignoreCancel(worker.Start(gctx)) })
			startHTTP(gctx, g, a)
			return g.Wait()
		},
	}
	cmd.Flags().Bool("once", false, "每个账户只运行一个周期")
	return cmd
}

func newWalletCmd() *cobra.Command {
	wallet := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the account roster",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint new accounts into the roster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			n, _ := cmd.Flags().GetInt("count")
			if n <= 0 {
				return errors.New("--count 必须大于 0")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			roster, err := openRoster(ctx, cfg.Accounts)
			if err != nil {
				return err
			}
			defer roster.Close()
			for i := 0; i < n; i++ {
				acct, err := roster.Mint(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", acct.Index, acct.Address.Hex())
			}
			return nil
		},
	}
	create.Flags().IntP("count", "n", 1, "生成的账户数量")
	wallet.AddCommand(create)
	return wallet
}

// startHTTP 按配置启动状态 API；未启用时可单独暴露 /metrics。
func startHTTP(ctx context.Context, g *errgroup.Group, a *app) {
	switch {
	case a.cfg.Server.Address != "":
		server := api.NewServer(a.cfg.Server.Address, task.NewService(a.history), a.roster)
		g.Go(func() error { return ignoreCancel(server.Start(ctx)) })
	case a.cfg.Server.MetricsAddress != "":
		g.Go(func() error { return ignoreCancel(metrics.StartServer(ctx, a.cfg.Server.MetricsAddress)) })
	}
}

func limitFor(once bool) int {
	if once {
		return 1
	}
	return 0
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
