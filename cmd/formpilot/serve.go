package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"formpilot/pkg/chat"
	"formpilot/pkg/chat/telegram"
	"formpilot/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat bot, the scheduler and the metrics endpoint",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := telegram.Open(cfg.Telegram)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("shutdown: %v", cerr)
		}
	}()

	if cfg.Scheduler.RestoreOnStart {
		n, err := a.jobs.Restore(ctx)
		if err != nil {
			return fmt.Errorf("failed to restore jobs: %w", err)
		}
		a.logger.Info("restored %d scheduled job(s)", n)
	}

	bot := chat.NewBot(telegram.NewTransport(api), a.sessions, a.engine, a.jobs,
		chat.WithAllowedUsers(cfg.Telegram.AllowedUsers...),
		chat.WithObserver(a.recorder))
	dispatcher := chat.NewDispatcher(bot, cfg.Telegram.QueueSize)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return telegram.NewPoller(api, cfg.Telegram.PollTimeout).Run(gctx, dispatcher)
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Listen, a.registry)
		})
	}
	a.logger.Info("🚀 formpilot is running as @%s", api.Self.UserName)

	err = g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := dispatcher.Stop(stopCtx); serr != nil {
		a.logger.Warn("dispatcher: %v", serr)
	}
	return err
}
