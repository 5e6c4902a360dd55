// Package telegram adapts the Telegram Bot API (long polling) to the
// washdesk message bus.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/channels"
	"github.com/washdeskhq/washdesk/internal/config"
)

// Telegram caps a single message at 4096 characters.
const maxMessageLen = 4096

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram channel from config.
func New(cfg config.TelegramConfig, router bus.InboundRouter) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", router, cfg.AllowFrom),
		bot:         bot,
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()

	return nil
}

// handleMessage normalizes one Telegram message into an InboundEvent.
// Photos arrive as opaque file-id refs; the dispatcher resolves them when
// attaching to operational mail.
func (c *Channel) handleMessage(msg *telego.Message) {
	// Support conversations are 1:1; group noise is ignored.
	if msg.Chat.Type != telego.ChatTypePrivate {
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	var attachments []string
	if len(msg.Photo) > 0 {
		// Telegram sends multiple resolutions; the last is the largest.
		best := msg.Photo[len(msg.Photo)-1]
		attachments = append(attachments, "tg-file:"+best.FileID)
	}
	if msg.Document != nil {
		attachments = append(attachments, "tg-file:"+msg.Document.FileID)
	}

	if text == "" && len(attachments) == 0 {
		return
	}

	senderName := ""
	if msg.From != nil {
		senderName = msg.From.FirstName
		if msg.From.LastName != "" {
			senderName += " " + msg.From.LastName
		}
	}

	c.HandleMessage(
		strconv.FormatInt(msg.Chat.ID, 10),
		senderName,
		text,
		attachments,
		strconv.Itoa(msg.MessageID),
		map[string]string{"date": strconv.FormatInt(msg.Date, 10)},
	)
}

// Send delivers text to a Telegram chat, splitting at the platform cap.
func (c *Channel) Send(ctx context.Context, address, text string) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", address, err)
	}

	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID: telego.ChatID{ID: chatID},
			Text:   part,
		}); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// Stop cancels the polling context and waits for the goroutine to exit so
// Telegram releases the getUpdates lock.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// splitMessage breaks text into chunks of at most limit runes, preferring
// newline boundaries.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
