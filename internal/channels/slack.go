package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/ansibot/ansibot/internal/bus"
	"github.com/ansibot/ansibot/internal/config"
)

// SlackChannel connects a Slack workspace over Socket Mode. Direct messages
// talk to the bot one on one; channel messages require a mention. Replies in
// a channel stay in the originating thread.
type SlackChannel struct {
	BaseChannel
	config    config.SlackConfig
	api       *slack.Client
	sock      *socketmode.Client
	botUserID string
	cancel    context.CancelFunc
}

func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	c.api = slack.New(c.config.BotToken, slack.OptionAppLevelToken(c.config.AppToken))

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = auth.UserID
	c.sock = socketmode.New(c.api)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.deliver(runCtx, msg); err != nil {
			slog.Warn("slack delivery failed", "conversation_id", msg.ConversationID, "error", err)
		}
	})

	go c.consumeEvents(runCtx)
	go func() {
		if err := c.sock.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("slack socket mode stopped", "error", err)
		}
	}()

	slog.Info("slack channel started", "bot_user_id", c.botUserID)
	return nil
}

func (c *SlackChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *SlackChannel) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.sock.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			if evt.Request != nil {
				c.sock.Ack(*evt.Request)
			}
			ev, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || ev.Type != slackevents.CallbackEvent {
				continue
			}
			switch in := ev.InnerEvent.Data.(type) {
			case *slackevents.MessageEvent:
				if in == nil {
					continue
				}
				// Channel messages arrive again as app_mention events;
				// handling them here too would double-process.
				if in.ChannelType != "im" {
					continue
				}
				c.handleMessage(in.User, in.BotID, in.Channel, in.ChannelType, in.ThreadTimeStamp, in.TimeStamp, in.Text)
			case *slackevents.AppMentionEvent:
				if in == nil {
					continue
				}
				c.handleMessage(in.User, in.BotID, in.Channel, "channel", in.ThreadTimeStamp, in.TimeStamp, in.Text)
			}
		}
	}
}

func (c *SlackChannel) handleMessage(userID, botID, channelID, channelType, threadTS, ts, text string) {
	// Never react to the bot's own messages.
	if botID != "" || userID == "" || userID == c.botUserID {
		return
	}
	if !Allowed(userID, c.config.AllowFrom) {
		slog.Debug("slack sender not in allow list", "user_id", userID)
		return
	}
	isDM := channelType == "im"
	mention := "<@" + c.botUserID + ">"
	if !isDM && !strings.Contains(text, mention) {
		return
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
	if text == "" {
		return
	}

	convID := channelID
	if !isDM {
		// Thread the whole conversation under the first message.
		anchor := threadTS
		if anchor == "" {
			anchor = ts
		}
		convID = FormatConversationID(channelID, anchor)
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:        c.Name(),
		SenderID:       userID,
		ConversationID: convID,
		Content:        text,
	})
}

func (c *SlackChannel) deliver(ctx context.Context, msg *bus.OutboundMessage) error {
	channelID, threadTS := ParseConversationID(msg.ConversationID)
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := c.api.PostMessageContext(ctx, channelID, opts...)
	return err
}

// FormatConversationID encodes a Slack channel and thread timestamp as one
// bus conversation ID.
func FormatConversationID(channelID, threadTS string) string {
	if threadTS == "" {
		return channelID
	}
	return channelID + "|" + threadTS
}

// ParseConversationID splits a bus conversation ID back into channel and
// thread timestamp.
func ParseConversationID(convID string) (channelID, threadTS string) {
	channelID, threadTS, _ = strings.Cut(convID, "|")
	return channelID, threadTS
}
