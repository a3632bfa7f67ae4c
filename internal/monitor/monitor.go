// Package monitor watches incoming messages on every live session for
// configured keywords and forwards matches to the operator channel.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/frhnm/tgfleet/internal/convo"
	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/ports"
)

type Config struct {
	Keywords    []string
	IgnoreUsers []int64
	// ChannelID is the operator channel; messages seen there are never
	// forwarded back into it.
	ChannelID int64
	// ForwardRate/ForwardBurst throttle forwarding so a keyword storm in a
	// busy chat cannot flood the operator channel.
	ForwardRate  rate.Limit
	ForwardBurst int
}

type Monitor struct {
	mu       sync.Mutex
	keywords []string
	ignored  map[int64]struct{}

	channelID int64
	notifier  ports.Notifier
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func New(cfg Config, notifier ports.Notifier, logger *slog.Logger) *Monitor {
	if notifier == nil {
		notifier = ports.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ForwardRate <= 0 {
		cfg.ForwardRate = rate.Every(time.Second)
	}
	if cfg.ForwardBurst <= 0 {
		cfg.ForwardBurst = 5
	}

	ignored := make(map[int64]struct{}, len(cfg.IgnoreUsers))
	for _, id := range cfg.IgnoreUsers {
		ignored[id] = struct{}{}
	}
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, keyword := range cfg.Keywords {
		if trimmed := strings.TrimSpace(keyword); trimmed != "" {
			keywords = append(keywords, trimmed)
		}
	}

	return &Monitor{
		keywords:  keywords,
		ignored:   ignored,
		channelID: cfg.ChannelID,
		notifier:  notifier,
		limiter:   rate.NewLimiter(cfg.ForwardRate, cfg.ForwardBurst),
		logger:    logger,
	}
}

// Attach subscribes the monitor to a session's incoming messages.
func (m *Monitor) Attach(client ports.Client) {
	client.OnNewMessage(func(ctx context.Context, msg ports.IncomingMessage) {
		if _, err := m.HandleMessage(ctx, msg); err != nil {
			m.logger.Error("forward matched message",
				"account_id", string(msg.AccountID), "error", err)
		}
	})
}

// HandleMessage applies the filters and forwards a match. The first return
// reports whether the message was forwarded.
func (m *Monitor) HandleMessage(ctx context.Context, msg ports.IncomingMessage) (bool, error) {
	if msg.Outgoing || msg.Text == "" {
		return false, nil
	}
	if m.channelID != 0 && msg.ChatID == m.channelID {
		// Never re-forward from the operator channel itself.
		return false, nil
	}
	if m.isIgnored(msg.SenderID) {
		return false, nil
	}
	if !m.matches(msg.Text) {
		return false, nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("forward throttle: %w", err)
	}
	if err := m.notifier.Notify(ctx, m.format(msg)); err != nil {
		return false, fmt.Errorf("forward to operator channel: %w", err)
	}

	m.logger.Info("forwarded matched message",
		"account_id", string(msg.AccountID),
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID)
	return true, nil
}

func (m *Monitor) matches(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lowered := strings.ToLower(text)
	for _, keyword := range m.keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func (m *Monitor) isIgnored(senderID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.ignored[senderID]
	return ok
}

func (m *Monitor) format(msg ports.IncomingMessage) string {
	sender := msg.SenderName
	if sender == "" {
		sender = "-"
	}
	title := msg.ChatTitle
	if title == "" {
		title = "-"
	}
	return fmt.Sprintf(
		"Account: %s\nUser: %s\n• User ID: %d\n• Chat: %s\n\n• Message:\n%s\n\n%s",
		msg.AccountID, sender, msg.SenderID, title, msg.Text,
		domain.MessageLink(msg.ChatUsername, msg.ChatID, msg.MessageID),
	)
}

// AddKeyword appends a keyword; duplicates (case-insensitive) are dropped.
func (m *Monitor) AddKeyword(keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("keyword must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.keywords {
		if strings.EqualFold(existing, keyword) {
			return fmt.Errorf("keyword %q already present", keyword)
		}
	}
	m.keywords = append(m.keywords, keyword)
	return nil
}

func (m *Monitor) RemoveKeyword(keyword string) error {
	keyword = strings.TrimSpace(keyword)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.keywords {
		if strings.EqualFold(existing, keyword) {
			m.keywords = append(m.keywords[:i], m.keywords[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("keyword %q not found", keyword)
}

func (m *Monitor) Keywords() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keywords...)
}

func (m *Monitor) IgnoreUser(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored[id] = struct{}{}
}

func (m *Monitor) UnignoreUser(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ignored, id)
}

// RegisterFlows wires the keyword and ignore-list editing flows into the
// tracker. Each flow consumes exactly one input.
func (m *Monitor) RegisterFlows(tracker *convo.Tracker, reply func(string)) error {
	if err := tracker.Register(convo.FlowAddKeyword, func(_ context.Context, message string, _ any) (convo.Disposition, error) {
		if err := m.AddKeyword(message); err != nil {
			reply(fmt.Sprintf("Not added: %v. Send another keyword.", err))
			return convo.Retain, nil
		}
		reply(fmt.Sprintf("Keyword %q added.", strings.TrimSpace(message)))
		return convo.Done, nil
	}); err != nil {
		return err
	}

	if err := tracker.Register(convo.FlowRemoveKeyword, func(_ context.Context, message string, _ any) (convo.Disposition, error) {
		if err := m.RemoveKeyword(message); err != nil {
			return convo.Done, err
		}
		reply(fmt.Sprintf("Keyword %q removed.", strings.TrimSpace(message)))
		return convo.Done, nil
	}); err != nil {
		return err
	}

	if err := tracker.Register(convo.FlowIgnoreUser, func(_ context.Context, message string, _ any) (convo.Disposition, error) {
		id, err := strconv.ParseInt(strings.TrimSpace(message), 10, 64)
		if err != nil {
			reply("That is not a numeric user ID. Send the user ID to ignore.")
			return convo.Retain, nil
		}
		m.IgnoreUser(id)
		reply(fmt.Sprintf("User %d is now ignored.", id))
		return convo.Done, nil
	}); err != nil {
		return err
	}

	return tracker.Register(convo.FlowUnignoreUser, func(_ context.Context, message string, _ any) (convo.Disposition, error) {
		id, err := strconv.ParseInt(strings.TrimSpace(message), 10, 64)
		if err != nil {
			return convo.Done, fmt.Errorf("parse user id: %w", err)
		}
		m.UnignoreUser(id)
		reply(fmt.Sprintf("User %d is no longer ignored.", id))
		return convo.Done, nil
	})
}
