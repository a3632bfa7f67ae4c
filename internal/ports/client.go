package ports

import (
	"context"

	"github.com/frhnm/tgfleet/internal/domain"
)

// IncomingMessage is one message delivered to a live session. The monitor
// consumes these; nothing else does.
type IncomingMessage struct {
	AccountID    domain.AccountID
	ChatID       int64
	ChatTitle    string
	ChatUsername string
	MessageID    int
	SenderID     int64
	SenderName   string
	Text         string
	Outgoing     bool
}

type MessageHandler func(ctx context.Context, msg IncomingMessage)

// Client is the authenticated vendor session handle. The vendor library is
// a black box behind this interface; every method is a suspension point and
// may fail with one of the structured error types in the domain package
// (RevokedError, FloodWaitError, CodeInvalidError, PasswordNeededError) or
// a plain transport error.
type Client interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	IsAuthorized(ctx context.Context) (bool, error)

	// Sign-in sequence for a fresh account.
	SendCode(ctx context.Context, phone string) error
	SignIn(ctx context.Context, phone, code string) error
	SignInWithPassword(ctx context.Context, password string) error
	ExportSession(ctx context.Context) (string, error)

	// Remote actions used by bulk operations.
	SendMessage(ctx context.Context, peer, text string) error
	JoinChannel(ctx context.Context, channel string) error
	LeaveChannel(ctx context.Context, channel string) error
	Block(ctx context.Context, peer string) error
	Vote(ctx context.Context, peer string, messageID int, option string) error
	React(ctx context.Context, peer string, messageID int, emoji string) error
	Comment(ctx context.Context, channel string, messageID int, text string) error

	// OnNewMessage registers a handler for messages arriving on this
	// session. Delivery order per chat follows arrival order.
	OnNewMessage(handler MessageHandler)
}

// Dialer constructs session handles. An empty session blob means a fresh,
// unauthenticated client for the sign-in flow.
type Dialer interface {
	Dial(ctx context.Context, phone, session string) (Client, error)
}
