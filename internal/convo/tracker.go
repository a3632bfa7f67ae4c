// Package convo routes free-text replies to the multi-step flow that is
// waiting for them. Flow kinds are a closed enum dispatched through
// registered handlers; there is no string-keyed handler lookup to go stale.
package convo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/frhnm/tgfleet/internal/domain"
)

type FlowKind int

const (
	FlowAddAccount FlowKind = iota + 1
	FlowAddKeyword
	FlowRemoveKeyword
	FlowIgnoreUser
	FlowUnignoreUser
)

func (k FlowKind) String() string {
	switch k {
	case FlowAddAccount:
		return "add_account"
	case FlowAddKeyword:
		return "add_keyword"
	case FlowRemoveKeyword:
		return "remove_keyword"
	case FlowIgnoreUser:
		return "ignore_user"
	case FlowUnignoreUser:
		return "unignore_user"
	default:
		return fmt.Sprintf("flow(%d)", int(k))
	}
}

// Disposition tells the tracker what to do with the flow entry after a
// handler returns without error.
type Disposition int

const (
	// Retain keeps the entry: the flow is waiting for the next input.
	Retain Disposition = iota
	// Done removes the entry: the flow reached a terminal state.
	Done
)

// Handler consumes one input for a pending flow. Returning an error always
// tears the flow down; a handler that wants to stay on the current step
// (wrong code, failed validation worth retrying) surfaces the problem to
// the user itself and returns Retain with a nil error.
type Handler func(ctx context.Context, message string, data any) (Disposition, error)

type flowEntry struct {
	kind FlowKind
	data any
}

type Tracker struct {
	mu       sync.Mutex
	flows    map[int64]flowEntry
	handlers map[FlowKind]Handler
	logger   *slog.Logger
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		flows:    make(map[int64]flowEntry),
		handlers: make(map[FlowKind]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a flow kind. Double registration is a wiring
// defect, not a runtime condition.
func (t *Tracker) Register(kind FlowKind, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handlers[kind]; ok {
		return fmt.Errorf("flow %s: handler already registered", kind)
	}
	t.handlers[kind] = handler
	return nil
}

// Begin opens a flow for a chat. A chat can have at most one pending flow;
// the caller must Cancel the existing one first.
func (t *Tracker) Begin(chatID int64, kind FlowKind, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handlers[kind]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownFlow, kind)
	}
	if existing, ok := t.flows[chatID]; ok {
		return fmt.Errorf("%w (pending: %s)", domain.ErrFlowInProgress, existing.kind)
	}
	t.flows[chatID] = flowEntry{kind: kind, data: data}
	return nil
}

// Dispatch routes a free-text message to the chat's pending flow. The first
// return reports whether any flow claimed the message. The entry is removed
// on handler error, on Done, and on panic; it survives only a clean Retain.
func (t *Tracker) Dispatch(ctx context.Context, chatID int64, message string) (bool, error) {
	t.mu.Lock()
	entry, ok := t.flows[chatID]
	handler := t.handlers[entry.kind]
	t.mu.Unlock()

	if !ok {
		return false, nil
	}

	finished := true
	defer func() {
		if finished {
			t.remove(chatID)
		}
	}()

	disposition, err := handler(ctx, message, entry.data)
	if err != nil {
		t.logger.Warn("flow handler failed",
			"flow", entry.kind.String(),
			"chat_id", chatID,
			"error", err)
		return true, err
	}
	if disposition == Retain {
		finished = false
	}
	return true, nil
}

// Complete removes the flow entry for a chat. Idempotent.
func (t *Tracker) Complete(chatID int64) bool { return t.remove(chatID) }

// Cancel removes the flow entry for a chat. Idempotent.
func (t *Tracker) Cancel(chatID int64) bool { return t.remove(chatID) }

// Active reports the pending flow kind for a chat, if any.
func (t *Tracker) Active(chatID int64) (FlowKind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.flows[chatID]
	return entry.kind, ok
}

func (t *Tracker) remove(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.flows[chatID]
	delete(t.flows, chatID)
	return ok
}
