// Package channels provides the messaging adapter layer. Adapters connect
// external platforms (Telegram, Discord) to the dialogue runtime via the
// message bus: inbound platform messages become normalized InboundEvents,
// and reply intents come back through the Manager.
package channels

import (
	"context"
	"strings"

	"github.com/washdeskhq/washdesk/internal/bus"
)

// Channel is the interface every adapter implements.
type Channel interface {
	// Name returns the channel identifier ("telegram", "discord").
	Name() string

	// Start begins receiving messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts the adapter down.
	Stop(ctx context.Context) error

	// Send delivers text to a platform address.
	Send(ctx context.Context, address, text string) error

	// IsRunning reports whether the adapter is processing messages.
	IsRunning() bool
}

// BaseChannel carries the shared adapter plumbing. Adapters embed it.
type BaseChannel struct {
	name      string
	router    bus.InboundRouter
	running   bool
	allowList []string
}

// NewBaseChannel creates the shared base for an adapter.
func NewBaseChannel(name string, router bus.InboundRouter, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, router: router, allowList: allowList}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning reports the running state.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// IsAllowed checks a sender against the allowlist. An empty allowlist
// accepts everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if senderID == strings.TrimPrefix(allowed, "@") {
			return true
		}
	}
	return false
}

// HandleMessage normalizes a received platform message and publishes it
// inbound. This is the one path from adapters into the core.
func (c *BaseChannel) HandleMessage(address, senderName, text string, attachments []string, messageID string, metadata map[string]string) {
	if !c.IsAllowed(address) {
		return
	}
	c.router.PublishInbound(bus.InboundEvent{
		Channel:        c.name,
		Address:        address,
		SenderName:     senderName,
		Text:           text,
		AttachmentRefs: attachments,
		MessageID:      messageID,
		Metadata:       metadata,
	})
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
