// Package channels connects chat platforms to the message bus.
package channels

import (
	"context"
	"strings"

	"github.com/ansibot/ansibot/internal/bus"
)

// Channel defines the interface for chat platforms.
type Channel interface {
	// Name returns the channel name (e.g. "slack").
	Name() string
	// Start starts the channel listener and registers the outbound
	// subscription. It returns once the listener is running.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}

// Allowed reports whether a sender passes an allow list. An empty list
// allows everyone.
func Allowed(senderID string, allowFrom []string) bool {
	if len(allowFrom) == 0 {
		return true
	}
	sender := strings.TrimSpace(senderID)
	for _, a := range allowFrom {
		if strings.EqualFold(strings.TrimSpace(a), sender) {
			return true
		}
	}
	return false
}
