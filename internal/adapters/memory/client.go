// Package memory implements the vendor client port in process, with
// controllable failures. It backs the test suite and the CLI's offline
// mode; no network is involved.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/ports"
)

type accountState struct {
	session      string
	code         string // expected verification code; "" accepts any
	password     string // 2FA password; "" means no second factor
	unauthorized bool   // force IsAuthorized to report false
	connectErr   error
	sendCodeErr  error
	opErr        error   // returned by every remote action until cleared
	opErrQueue   []error // consumed one per remote action, before opErr
}

type Dialer struct {
	mu       sync.Mutex
	accounts map[string]*accountState
	calls    []string
}

var _ ports.Dialer = (*Dialer)(nil)

func NewDialer() *Dialer {
	return &Dialer{accounts: make(map[string]*accountState)}
}

// AddAccount seeds an account whose stored session blob authorizes.
func (d *Dialer) AddAccount(phone, session string) {
	d.state(phone).session = session
}

// SetSignIn configures the fresh-auth path: the code the vendor "sent" and
// the optional 2FA password.
func (d *Dialer) SetSignIn(phone, code, password string) {
	s := d.state(phone)
	s.code = code
	s.password = password
}

func (d *Dialer) SetUnauthorized(phone string) {
	d.state(phone).unauthorized = true
}

func (d *Dialer) SetConnectError(phone string, err error) {
	d.state(phone).connectErr = err
}

// SetSendCodeError makes SendCode fail with err until called again with nil.
func (d *Dialer) SetSendCodeError(phone string, err error) {
	d.state(phone).sendCodeErr = err
}

// SetOperationError makes every remote action on the account fail with err
// until called again with nil.
func (d *Dialer) SetOperationError(phone string, err error) {
	d.state(phone).opErr = err
}

// QueueOperationErrors makes the next remote actions fail in order; a nil
// entry lets that action succeed.
func (d *Dialer) QueueOperationErrors(phone string, errs ...error) {
	s := d.state(phone)
	s.opErrQueue = append(s.opErrQueue, errs...)
}

// Calls lists completed remote actions as "phone op target" strings.
func (d *Dialer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Dialer) Dial(_ context.Context, phone, session string) (ports.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.accounts[phone]
	if !ok {
		state = &accountState{}
		d.accounts[phone] = state
	}
	return &Client{dialer: d, state: state, phone: phone, session: session}, nil
}

func (d *Dialer) state(phone string) *accountState {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.accounts[phone]
	if !ok {
		state = &accountState{}
		d.accounts[phone] = state
	}
	return state
}

func (d *Dialer) record(phone, op, target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf("%s %s %s", phone, op, target))
}

type Client struct {
	dialer  *Dialer
	state   *accountState
	phone   string
	session string

	mu         sync.Mutex
	connected  bool
	authorized bool
	codeSent   bool
	codeOK     bool
	handlers   []ports.MessageHandler
}

var _ ports.Client = (*Client)(nil)

func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.dialer.mu.Lock()
	connectErr := c.state.connectErr
	storedSession := c.state.session
	unauthorized := c.state.unauthorized
	c.dialer.mu.Unlock()

	if connectErr != nil {
		return connectErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	// Any non-empty session blob authorizes unless the account was seeded
	// with a specific blob or forced unauthorized.
	c.authorized = c.session != "" && !unauthorized &&
		(storedSession == "" || c.session == storedSession)
	return nil
}

func (c *Client) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false, domain.ErrNotConnected
	}
	return c.authorized, nil
}

func (c *Client) SendCode(ctx context.Context, phone string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.dialer.mu.Lock()
	sendCodeErr := c.state.sendCodeErr
	c.dialer.mu.Unlock()
	if sendCodeErr != nil {
		return sendCodeErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return domain.ErrNotConnected
	}
	c.codeSent = true
	c.dialer.record(phone, "send_code", "")
	return nil
}

func (c *Client) SignIn(ctx context.Context, phone, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.dialer.mu.Lock()
	expectedCode := c.state.code
	password := c.state.password
	c.dialer.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || !c.codeSent {
		return domain.ErrNotConnected
	}
	if expectedCode != "" && code != expectedCode {
		return &domain.CodeInvalidError{}
	}
	c.codeOK = true
	if password != "" {
		return &domain.PasswordNeededError{}
	}
	c.authorized = true
	return nil
}

func (c *Client) SignInWithPassword(ctx context.Context, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.dialer.mu.Lock()
	expected := c.state.password
	c.dialer.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || !c.codeOK {
		return domain.ErrNotConnected
	}
	if password != expected {
		return fmt.Errorf("two-factor password does not match")
	}
	c.authorized = true
	return nil
}

func (c *Client) ExportSession(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	authorized := c.authorized
	c.mu.Unlock()
	if !authorized {
		return "", domain.ErrNotAuthorized
	}

	session := "session-" + c.phone
	c.dialer.mu.Lock()
	c.state.session = session
	c.dialer.mu.Unlock()
	return session, nil
}

func (c *Client) SendMessage(ctx context.Context, peer, text string) error {
	return c.action(ctx, "send_message", peer)
}

func (c *Client) JoinChannel(ctx context.Context, channel string) error {
	return c.action(ctx, "join", channel)
}

func (c *Client) LeaveChannel(ctx context.Context, channel string) error {
	return c.action(ctx, "leave", channel)
}

func (c *Client) Block(ctx context.Context, peer string) error {
	return c.action(ctx, "block", peer)
}

func (c *Client) Vote(ctx context.Context, peer string, messageID int, option string) error {
	return c.action(ctx, "vote", fmt.Sprintf("%s/%d", peer, messageID))
}

func (c *Client) React(ctx context.Context, peer string, messageID int, emoji string) error {
	return c.action(ctx, "react", fmt.Sprintf("%s/%d", peer, messageID))
}

func (c *Client) Comment(ctx context.Context, channel string, messageID int, text string) error {
	return c.action(ctx, "comment", fmt.Sprintf("%s/%d", channel, messageID))
}

func (c *Client) OnNewMessage(handler ports.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Deliver pushes a message through the registered handlers, as the vendor
// library would on an update.
func (c *Client) Deliver(ctx context.Context, msg ports.IncomingMessage) {
	c.mu.Lock()
	handlers := append([]ports.MessageHandler(nil), c.handlers...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, msg)
	}
}

func (c *Client) action(ctx context.Context, op, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	connected, authorized := c.connected, c.authorized
	c.mu.Unlock()
	if !connected {
		return domain.ErrNotConnected
	}
	if !authorized {
		return domain.ErrNotAuthorized
	}

	c.dialer.mu.Lock()
	var injected error
	if len(c.state.opErrQueue) > 0 {
		injected = c.state.opErrQueue[0]
		c.state.opErrQueue = c.state.opErrQueue[1:]
	} else {
		injected = c.state.opErr
	}
	c.dialer.mu.Unlock()

	if injected != nil {
		return injected
	}
	c.dialer.record(c.phone, op, target)
	return nil
}
