// Package bulk runs one logical operation across many sessions with a
// bounded number in flight, per-account pacing, and classified outcomes.
package bulk

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/ports"
	"github.com/frhnm/tgfleet/internal/registry"
)

// Operation is one vendor action applied to a single session.
type Operation func(ctx context.Context, client ports.Client) error

// Retirer is the lifecycle manager's hook for permanently failed sessions.
// A bulk run is a valid trigger for retirement: a revoked credential
// discovered mid-run is removed right away, not at the next startup.
type Retirer interface {
	Retire(ctx context.Context, id domain.AccountID, cause error)
}

type Config struct {
	// MaxConcurrent is the admission gate width. No more than this many
	// operations are in flight at once, regardless of batch size.
	MaxConcurrent int64
	// PacingMin/PacingMax bound the randomized per-account delay inserted
	// before each operation. This is deliberate throttling against
	// vendor-side abuse detection, applied per account so it does not
	// serialize the batch.
	PacingMin time.Duration
	PacingMax time.Duration
	Retry     RetryPolicy
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.PacingMin <= 0 {
		c.PacingMin = time.Second
	}
	if c.PacingMax < c.PacingMin {
		c.PacingMax = c.PacingMin + 2*time.Second
	}
	return c
}

type Executor struct {
	registry *registry.Registry
	retirer  Retirer
	logger   *slog.Logger
	cfg      Config
	sem      *semaphore.Weighted
}

func NewExecutor(reg *registry.Registry, retirer Retirer, logger *slog.Logger, cfg Config) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Executor{
		registry: reg,
		retirer:  retirer,
		logger:   logger,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Run executes op over the requested sessions and aggregates the outcomes.
// It never returns vendor errors; per-session failures are classified into
// the result. Requested sessions absent from the registry count as failures
// without being attempted. Cancelling ctx stops admitting new sessions;
// in-flight attempts finish naturally.
func (e *Executor) Run(ctx context.Context, ids []domain.AccountID, operation string, op Operation) domain.BulkResult {
	result := domain.BulkResult{
		RunID:     uuid.NewString(),
		Operation: operation,
	}

	entries := e.registry.Snapshot(ids...)
	present := make(map[domain.AccountID]bool, len(entries))
	for _, entry := range entries {
		present[entry.ID] = true
	}
	for _, id := range ids {
		if !present[id] {
			result.Failed++
			e.logger.Warn("account unavailable for bulk operation",
				"run_id", result.RunID,
				"operation", operation,
				"account_id", string(id))
		}
	}

	logger := e.logger.With("run_id", result.RunID)

	var mu sync.Mutex
	var group errgroup.Group
	for _, entry := range entries {
		group.Go(func() error {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				// Shutting down: this session was never admitted.
				mu.Lock()
				result.Failed++
				mu.Unlock()
				logger.Warn("bulk run stopped admitting sessions",
					"operation", operation,
					"account_id", string(entry.ID),
					"error", err)
				return nil
			}
			defer e.sem.Release(1)

			if err := sleep(ctx, e.pacingDelay()); err != nil {
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return nil
			}

			outcome := Retry(ctx, logger, e.cfg.Retry, entry.ID, operation, func(ctx context.Context) error {
				return op(ctx, entry.Client)
			})

			mu.Lock()
			if outcome.Err == nil {
				result.Succeeded++
			} else {
				result.Failed++
				if outcome.Class == domain.ClassPermanent {
					result.Revoked = append(result.Revoked, entry.ID)
				}
			}
			mu.Unlock()

			if outcome.Err != nil && outcome.Class == domain.ClassPermanent && e.retirer != nil {
				e.retirer.Retire(ctx, entry.ID, outcome.Err)
			}
			return nil
		})
	}
	_ = group.Wait()

	logger.Info("bulk run finished",
		"operation", operation,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"revoked", len(result.Revoked))
	return result
}

func (e *Executor) pacingDelay() time.Duration {
	spread := e.cfg.PacingMax - e.cfg.PacingMin
	if spread <= 0 {
		return e.cfg.PacingMin
	}
	return e.cfg.PacingMin + rand.N(spread)
}
