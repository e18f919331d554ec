package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ansibot/ansibot/internal/channels"
	"github.com/ansibot/ansibot/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant service with all configured channels",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("🚀 AnsiBot Serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go rt.sessions.StartSweeper(ctx, rt.sweepInterval())
	go rt.orch.StartSweeper(ctx, rt.sweepInterval(), cfg.Session.Expiry)

	var active []channels.Channel
	if cfg.Channels.Slack.Enabled {
		slack := channels.NewSlackChannel(cfg.Channels.Slack, rt.bus)
		if err := slack.Start(ctx); err != nil {
			return fmt.Errorf("start slack: %w", err)
		}
		active = append(active, slack)
		fmt.Println("Channel: slack ✓")
	}
	if len(active) == 0 {
		fmt.Println("No channels enabled; serving the bus only.")
	}

	go func() { _ = rt.bus.DispatchOutbound(ctx) }()

	fmt.Println("AnsiBot is running. Press Ctrl+C to stop.")
	err = rt.orch.Run(ctx)

	for _, ch := range active {
		_ = ch.Stop()
	}
	if ctx.Err() != nil {
		fmt.Println("\nShutting down.")
		return nil
	}
	return err
}
