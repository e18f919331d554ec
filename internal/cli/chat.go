package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ansibot/ansibot/internal/bus"
	"github.com/ansibot/ansibot/internal/config"
)

var chatConversationID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "cli:default", "Conversation ID")
}

func runChat(cmd *cobra.Command, args []string) error {
	printHeader("🤖 AnsiBot Chat")

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

	if _, ok := rt.storedCredentials(); !ok {
		fmt.Println(color.YellowString("No controller token stored. Run 'ansibot login' first."))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.bus.Subscribe("cli", func(msg *bus.OutboundMessage) {
		switch msg.Kind {
		case bus.KindApprovalPrompt:
			fmt.Println(color.YellowString(msg.Content))
		case bus.KindToolResult:
			fmt.Println(color.GreenString(msg.Content))
		case bus.KindError:
			fmt.Println(color.RedString(msg.Content))
		default:
			fmt.Println(msg.Content)
		}
		fmt.Print("> ")
	})
	go func() { _ = rt.bus.DispatchOutbound(ctx) }()
	go func() { _ = rt.orch.Run(ctx) }()

	fmt.Printf("Connected to %s. Type a request, 'approve:<id>' / 'deny:<id>' to answer prompts, 'reset' to start over, or 'exit' to quit.\n", cfg.Controller.BaseURL)
	fmt.Print("> ")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if line == "reset" {
			rt.orch.EndConversation(chatConversationID)
			fmt.Println("Conversation cleared.")
			fmt.Print("> ")
			continue
		}
		rt.bus.PublishInbound(&bus.InboundMessage{
			Channel:        "cli",
			SenderID:       "local",
			ConversationID: chatConversationID,
			Content:        line,
		})
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}
