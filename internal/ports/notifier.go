package ports

import "context"

// Notifier delivers operator-facing messages: classification alerts from the
// lifecycle manager and forwarded matches from the keyword monitor.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NopNotifier is wired when no operator channel is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) error { return nil }
