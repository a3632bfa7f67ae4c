package bulk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frhnm/tgfleet/internal/adapters/memory"
	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/logging"
	"github.com/frhnm/tgfleet/internal/ports"
	"github.com/frhnm/tgfleet/internal/registry"
)

type recordingRetirer struct {
	mu      sync.Mutex
	retired []domain.AccountID
}

func (r *recordingRetirer) Retire(_ context.Context, id domain.AccountID, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retired = append(r.retired, id)
}

func (r *recordingRetirer) ids() []domain.AccountID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AccountID(nil), r.retired...)
}

func fastConfig() Config {
	return Config{
		MaxConcurrent: 3,
		PacingMin:     time.Millisecond,
		PacingMax:     2 * time.Millisecond,
		Retry:         fastPolicy(),
	}
}

func seedRegistry(t *testing.T, dialer *memory.Dialer, phones ...string) *registry.Registry {
	t.Helper()

	reg := registry.New()
	for _, phone := range phones {
		dialer.AddAccount(phone, "session-"+phone)
		client, err := dialer.Dial(context.Background(), phone, "session-"+phone)
		require.NoError(t, err)
		require.NoError(t, client.Connect(context.Background()))
		_, err = reg.Insert(domain.AccountID(phone), client)
		require.NoError(t, err)
	}
	return reg
}

func TestRunAllSucceed(t *testing.T) {
	t.Parallel()

	dialer := memory.NewDialer()
	reg := seedRegistry(t, dialer, "+15550001111", "+15550002222", "+15550003333")
	executor := NewExecutor(reg, nil, logging.Discard(), fastConfig())

	ids := reg.ActiveIDs()
	result := executor.Run(context.Background(), ids, "join", func(ctx context.Context, client ports.Client) error {
		return client.JoinChannel(ctx, "somechannel")
	})

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "join", result.Operation)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Revoked)
	assert.Len(t, dialer.Calls(), 3)
}

// No more than MaxConcurrent operations may be in flight at once, no matter
// how large the batch is.
func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	dialer := memory.NewDialer()
	phones := []string{
		"+15550001111", "+15550002222", "+15550003333", "+15550004444",
		"+15550005555", "+15550006666", "+15550007777", "+15550008888",
	}
	reg := seedRegistry(t, dialer, phones...)

	cfg := fastConfig()
	cfg.MaxConcurrent = 3
	executor := NewExecutor(reg, nil, logging.Discard(), cfg)

	var inFlight, peak atomic.Int64
	result := executor.Run(context.Background(), reg.ActiveIDs(), "dm", func(context.Context, ports.Client) error {
		current := inFlight.Add(1)
		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	assert.Equal(t, len(phones), result.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Greater(t, peak.Load(), int64(0))
}

// One account hitting a transient failure recovers on retry and the rest of
// the batch is unaffected.
func TestRunRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	dialer := memory.NewDialer()
	reg := seedRegistry(t, dialer, "+15550001111", "+15550002222")
	dialer.QueueOperationErrors("+15550001111", errors.New("connection reset by peer"), nil)

	executor := NewExecutor(reg, nil, logging.Discard(), fastConfig())
	result := executor.Run(context.Background(), reg.ActiveIDs(), "join", func(ctx context.Context, client ports.Client) error {
		return client.JoinChannel(ctx, "somechannel")
	})

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Revoked)
}

// A revoked session fails permanently, is reported in the result, and is
// handed to the retirer; every other account still completes.
func TestRunRetiresRevokedAccount(t *testing.T) {
	t.Parallel()

	dialer := memory.NewDialer()
	reg := seedRegistry(t, dialer, "+15550001111", "+15550002222", "+15550003333")
	dialer.SetOperationError("+15550002222", &domain.RevokedError{Reason: "auth key dropped"})

	retirer := &recordingRetirer{}
	executor := NewExecutor(reg, retirer, logging.Discard(), fastConfig())
	result := executor.Run(context.Background(), reg.ActiveIDs(), "join", func(ctx context.Context, client ports.Client) error {
		return client.JoinChannel(ctx, "somechannel")
	})

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []domain.AccountID{"+15550002222"}, result.Revoked)
	assert.Equal(t, []domain.AccountID{"+15550002222"}, retirer.ids())
}

// Exhausted transient retries fail the operation but never unregister the
// session; it stays available for later runs.
func TestRunKeepsSessionAfterTransientExhaustion(t *testing.T) {
	t.Parallel()

	dialer := memory.NewDialer()
	reg := seedRegistry(t, dialer, "+15550001111")
	dialer.SetOperationError("+15550001111", errors.New("connection reset by peer"))

	retirer := &recordingRetirer{}
	executor := NewExecutor(reg, retirer, logging.Discard(), fastConfig())
	result := executor.Run(context.Background(), reg.ActiveIDs(), "join", func(ctx context.Context, client ports.Client) error {
		return client.JoinChannel(ctx, "somechannel")
	})

	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, result.Revoked)
	assert.Empty(t, retirer.ids())
	assert.True(t, reg.IsActive("+15550001111"))
}

func TestRunCountsMissingAccountsAsFailures(t *testing.T) {
	t.Parallel()

	dialer := memory.NewDialer()
	reg := seedRegistry(t, dialer, "+15550001111")

	executor := NewExecutor(reg, nil, logging.Discard(), fastConfig())
	ids := []domain.AccountID{"+15550001111", "+15550009999"}
	result := executor.Run(context.Background(), ids, "join", func(ctx context.Context, client ports.Client) error {
		return client.JoinChannel(ctx, "somechannel")
	})

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Attempted())
}

func TestRunStopsAdmittingOnCancel(t *testing.T) {
	t.Parallel()

	dialer := memory.NewDialer()
	reg := seedRegistry(t, dialer, "+15550001111", "+15550002222", "+15550003333", "+15550004444")

	cfg := fastConfig()
	cfg.MaxConcurrent = 1
	cfg.PacingMin = 5 * time.Millisecond
	cfg.PacingMax = 6 * time.Millisecond
	executor := NewExecutor(reg, nil, logging.Discard(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int64
	result := executor.Run(ctx, reg.ActiveIDs(), "join", func(context.Context, ports.Client) error {
		started.Add(1)
		cancel()
		return nil
	})

	// Every requested account is accounted for, one way or the other.
	assert.Equal(t, 4, result.Attempted())
	assert.Less(t, started.Load(), int64(4), "cancellation must stop admitting new sessions")
}

func TestRunEmptyBatch(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	executor := NewExecutor(reg, nil, logging.Discard(), fastConfig())

	result := executor.Run(context.Background(), nil, "join", func(ctx context.Context, client ports.Client) error {
		return client.JoinChannel(ctx, "somechannel")
	})

	assert.Equal(t, 0, result.Attempted())
	assert.NotEmpty(t, result.RunID)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	assert.Equal(t, int64(3), cfg.MaxConcurrent)
	assert.Equal(t, time.Second, cfg.PacingMin)
	assert.Equal(t, 3*time.Second, cfg.PacingMax)
}
