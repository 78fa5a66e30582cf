package notifier

import (
	"context"
	"time"

	kit "pingkeeper/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// DefaultConfig is used when the config file has no notifier section.
func DefaultConfig() Config {
	return Config{Enabled: true, Workers: 2, QueueSize: 512, RatePerSec: 20, RetryMax: 3}
}

// Sender is the slice of the transport adapter the notifier needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	ChatID int64     `json:"chat_id"`
	Text   string    `json:"text"`
}

// NotificationEvent is published on the event bus for lifecycle events.
type NotificationEvent struct {
	Channel string    `json:"channel"`
	ChatID  int64     `json:"chat_id"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
