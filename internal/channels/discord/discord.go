// Package discord adapts the Discord gateway to the washdesk message bus.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/channels"
	"github.com/washdeskhq/washdesk/internal/config"
)

// Discord caps a single message at 2000 characters.
const maxMessageLen = 2000

// Channel connects to Discord via gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	botUserID string
}

// New creates a Discord channel from config.
func New(cfg config.DiscordConfig, router bus.InboundRouter) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", router, cfg.AllowFrom),
		session:     session,
	}, nil
}

// Start opens the gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// handleMessage normalizes one DM into an InboundEvent. Guild messages and
// the bot's own messages are ignored; support conversations are 1:1.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}
	if m.GuildID != "" {
		return
	}

	var attachments []string
	for _, a := range m.Attachments {
		attachments = append(attachments, a.URL)
	}
	if m.Content == "" && len(attachments) == 0 {
		return
	}

	c.HandleMessage(
		m.ChannelID,
		m.Author.Username,
		m.Content,
		attachments,
		m.ID,
		map[string]string{"author_id": m.Author.ID},
	)
}

// Send delivers text to a Discord channel, splitting at the platform cap.
func (c *Channel) Send(_ context.Context, address, text string) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if text == "" {
		return nil
	}
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := c.session.ChannelMessageSend(address, part); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit characters. The limit
// counts runes, not bytes, so a multibyte rune is never torn apart.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
