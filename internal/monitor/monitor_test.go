package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/frhnm/tgfleet/internal/adapters/memory"
	"github.com/frhnm/tgfleet/internal/convo"
	"github.com/frhnm/tgfleet/internal/logging"
	"github.com/frhnm/tgfleet/internal/ports"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func newTestMonitor(cfg Config) (*Monitor, *recordingNotifier) {
	notifier := &recordingNotifier{}
	if cfg.ForwardRate == 0 {
		cfg.ForwardRate = rate.Inf
	}
	return New(cfg, notifier, logging.Discard()), notifier
}

func message() ports.IncomingMessage {
	return ports.IncomingMessage{
		AccountID:    "+15550001111",
		ChatID:       -100123456,
		ChatTitle:    "Trading Floor",
		ChatUsername: "tradingfloor",
		MessageID:    42,
		SenderID:     9001,
		SenderName:   "alice",
		Text:         "selling cheap USDT right now",
	}
}

func TestHandleMessageForwardsKeywordMatch(t *testing.T) {
	t.Parallel()

	m, notifier := newTestMonitor(Config{Keywords: []string{"usdt"}})

	forwarded, err := m.HandleMessage(context.Background(), message())
	require.NoError(t, err)
	assert.True(t, forwarded)

	messages := notifier.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Account: +15550001111")
	assert.Contains(t, messages[0], "alice")
	assert.Contains(t, messages[0], "selling cheap USDT")
	assert.Contains(t, messages[0], "https://t.me/tradingfloor/42")
}

func TestHandleMessageFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*ports.IncomingMessage)
		cfg    Config
	}{
		{
			name:   "no keyword match",
			mutate: func(m *ports.IncomingMessage) { m.Text = "nothing interesting" },
			cfg:    Config{Keywords: []string{"usdt"}},
		},
		{
			name:   "outgoing message",
			mutate: func(m *ports.IncomingMessage) { m.Outgoing = true },
			cfg:    Config{Keywords: []string{"usdt"}},
		},
		{
			name:   "empty text",
			mutate: func(m *ports.IncomingMessage) { m.Text = "" },
			cfg:    Config{Keywords: []string{"usdt"}},
		},
		{
			name:   "ignored sender",
			mutate: func(*ports.IncomingMessage) {},
			cfg:    Config{Keywords: []string{"usdt"}, IgnoreUsers: []int64{9001}},
		},
		{
			name:   "operator channel itself",
			mutate: func(m *ports.IncomingMessage) { m.ChatID = -100999 },
			cfg:    Config{Keywords: []string{"usdt"}, ChannelID: -100999},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, notifier := newTestMonitor(tt.cfg)
			msg := message()
			tt.mutate(&msg)

			forwarded, err := m.HandleMessage(context.Background(), msg)
			require.NoError(t, err)
			assert.False(t, forwarded)
			assert.Empty(t, notifier.all())
		})
	}
}

func TestKeywordMatchingIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(Config{Keywords: []string{"UsDt"}})
	msg := message()
	msg.Text = "USDT is mentioned here"

	forwarded, err := m.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, forwarded)
}

func TestAddAndRemoveKeywords(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(Config{})

	require.NoError(t, m.AddKeyword("usdt"))
	assert.Error(t, m.AddKeyword("USDT"), "duplicates are case-insensitive")
	assert.Error(t, m.AddKeyword("  "))
	assert.Equal(t, []string{"usdt"}, m.Keywords())

	require.NoError(t, m.RemoveKeyword("USDT"))
	assert.Error(t, m.RemoveKeyword("usdt"))
	assert.Empty(t, m.Keywords())
}

func TestIgnoreAndUnignoreUser(t *testing.T) {
	t.Parallel()

	m, notifier := newTestMonitor(Config{Keywords: []string{"usdt"}})
	m.IgnoreUser(9001)

	forwarded, err := m.HandleMessage(context.Background(), message())
	require.NoError(t, err)
	assert.False(t, forwarded)

	m.UnignoreUser(9001)
	forwarded, err = m.HandleMessage(context.Background(), message())
	require.NoError(t, err)
	assert.True(t, forwarded)
	assert.Len(t, notifier.all(), 1)
}

func TestAttachForwardsDeliveredMessages(t *testing.T) {
	t.Parallel()

	m, notifier := newTestMonitor(Config{Keywords: []string{"usdt"}})

	dialer := memory.NewDialer()
	client, err := dialer.Dial(context.Background(), "+15550001111", "session-+15550001111")
	require.NoError(t, err)
	memClient, ok := client.(*memory.Client)
	require.True(t, ok)

	m.Attach(client)
	memClient.Deliver(context.Background(), message())

	assert.Len(t, notifier.all(), 1)
}

func TestRegisterFlows(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(Config{})
	tracker := convo.NewTracker(logging.Discard())
	var replies []string
	require.NoError(t, m.RegisterFlows(tracker, func(text string) {
		replies = append(replies, text)
	}))

	const chatID = int64(5)

	// Add a keyword through the conversational flow.
	require.NoError(t, tracker.Begin(chatID, convo.FlowAddKeyword, nil))
	_, err := tracker.Dispatch(context.Background(), chatID, "usdt")
	require.NoError(t, err)
	assert.Equal(t, []string{"usdt"}, m.Keywords())

	// A non-numeric ignore input keeps the flow waiting.
	require.NoError(t, tracker.Begin(chatID, convo.FlowIgnoreUser, nil))
	_, err = tracker.Dispatch(context.Background(), chatID, "not a number")
	require.NoError(t, err)
	_, active := tracker.Active(chatID)
	require.True(t, active)
	_, err = tracker.Dispatch(context.Background(), chatID, "9001")
	require.NoError(t, err)
	_, active = tracker.Active(chatID)
	assert.False(t, active)

	// Remove the keyword again.
	require.NoError(t, tracker.Begin(chatID, convo.FlowRemoveKeyword, nil))
	_, err = tracker.Dispatch(context.Background(), chatID, "usdt")
	require.NoError(t, err)
	assert.Empty(t, m.Keywords())

	assert.NotEmpty(t, replies)
}
