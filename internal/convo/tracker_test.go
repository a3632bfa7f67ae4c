package convo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/logging"
)

func TestRegisterRejectsDuplicateHandler(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	handler := func(context.Context, string, any) (Disposition, error) { return Done, nil }

	require.NoError(t, tracker.Register(FlowAddKeyword, handler))
	assert.Error(t, tracker.Register(FlowAddKeyword, handler))
}

func TestBeginRequiresRegisteredHandler(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	err := tracker.Begin(1, FlowAddKeyword, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownFlow)
}

// A chat holds at most one pending flow at a time.
func TestBeginRejectsSecondFlowForSameChat(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	handler := func(context.Context, string, any) (Disposition, error) { return Retain, nil }
	require.NoError(t, tracker.Register(FlowAddKeyword, handler))
	require.NoError(t, tracker.Register(FlowIgnoreUser, handler))

	require.NoError(t, tracker.Begin(1, FlowAddKeyword, nil))
	err := tracker.Begin(1, FlowIgnoreUser, nil)
	assert.ErrorIs(t, err, domain.ErrFlowInProgress)

	// A different chat is unaffected.
	assert.NoError(t, tracker.Begin(2, FlowIgnoreUser, nil))
}

func TestDispatchWithoutPendingFlow(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	claimed, err := tracker.Dispatch(context.Background(), 1, "hello")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestDispatchRetainKeepsFlow(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	var seen []string
	require.NoError(t, tracker.Register(FlowAddKeyword, func(_ context.Context, message string, _ any) (Disposition, error) {
		seen = append(seen, message)
		if len(seen) < 2 {
			return Retain, nil
		}
		return Done, nil
	}))
	require.NoError(t, tracker.Begin(1, FlowAddKeyword, nil))

	claimed, err := tracker.Dispatch(context.Background(), 1, "first")
	require.NoError(t, err)
	assert.True(t, claimed)
	_, active := tracker.Active(1)
	assert.True(t, active)

	claimed, err = tracker.Dispatch(context.Background(), 1, "second")
	require.NoError(t, err)
	assert.True(t, claimed)
	_, active = tracker.Active(1)
	assert.False(t, active)

	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestDispatchErrorRemovesFlow(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	boom := errors.New("boom")
	require.NoError(t, tracker.Register(FlowAddKeyword, func(context.Context, string, any) (Disposition, error) {
		return Retain, boom
	}))
	require.NoError(t, tracker.Begin(1, FlowAddKeyword, nil))

	claimed, err := tracker.Dispatch(context.Background(), 1, "anything")
	assert.True(t, claimed)
	assert.ErrorIs(t, err, boom)

	_, active := tracker.Active(1)
	assert.False(t, active, "error exits must not strand the chat mid-flow")
	assert.NoError(t, tracker.Begin(1, FlowAddKeyword, nil))
}

func TestDispatchPanicRemovesFlow(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	require.NoError(t, tracker.Register(FlowAddKeyword, func(context.Context, string, any) (Disposition, error) {
		panic("handler bug")
	}))
	require.NoError(t, tracker.Begin(1, FlowAddKeyword, nil))

	assert.Panics(t, func() {
		_, _ = tracker.Dispatch(context.Background(), 1, "anything")
	})

	_, active := tracker.Active(1)
	assert.False(t, active, "a panicking handler must not leave the entry behind")
}

func TestDispatchPassesFlowData(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	type carrier struct{ value string }
	var got any
	require.NoError(t, tracker.Register(FlowAddKeyword, func(_ context.Context, _ string, data any) (Disposition, error) {
		got = data
		return Done, nil
	}))
	require.NoError(t, tracker.Begin(1, FlowAddKeyword, &carrier{value: "payload"}))

	_, err := tracker.Dispatch(context.Background(), 1, "msg")
	require.NoError(t, err)
	require.IsType(t, &carrier{}, got)
	assert.Equal(t, "payload", got.(*carrier).value)
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(logging.Discard())
	require.NoError(t, tracker.Register(FlowAddKeyword, func(context.Context, string, any) (Disposition, error) {
		return Retain, nil
	}))
	require.NoError(t, tracker.Begin(1, FlowAddKeyword, nil))

	assert.True(t, tracker.Cancel(1))
	assert.False(t, tracker.Cancel(1))
	assert.False(t, tracker.Complete(1))
}
