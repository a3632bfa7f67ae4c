// Package lifecycle brings persisted sessions into the registry, drives
// new-account authentication, and retires sessions whose credentials the
// vendor has permanently invalidated.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/ports"
	"github.com/frhnm/tgfleet/internal/registry"
)

type Manager struct {
	registry *registry.Registry
	accounts ports.AccountRepository
	secrets  ports.SecretStore
	dialer   ports.Dialer
	notifier ports.Notifier
	logger   *slog.Logger
	clock    ports.Clock
}

func NewManager(reg *registry.Registry, accounts ports.AccountRepository, secrets ports.SecretStore, dialer ports.Dialer, notifier ports.Notifier, logger *slog.Logger, clock ports.Clock) *Manager {
	if notifier == nil {
		notifier = ports.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Manager{
		registry: reg,
		accounts: accounts,
		secrets:  secrets,
		dialer:   dialer,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
	}
}

// LoadPersisted connects every enabled persisted account and registers the
// ones that come up authorized. Permanently failed descriptors are retired
// on the spot. Transient failures leave the account absent for this run; it
// is retried at the next startup, not auto-healed mid-run, so a flapping
// account is visible to the operator instead of silently churning.
func (m *Manager) LoadPersisted(ctx context.Context) (int, error) {
	descriptors, err := m.accounts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list persisted accounts: %w", err)
	}

	loaded := 0
	for _, descriptor := range descriptors {
		if !descriptor.Enabled {
			continue
		}
		if err := m.connectAndRegister(ctx, descriptor); err != nil {
			m.handleLoadFailure(ctx, descriptor, err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

func (m *Manager) connectAndRegister(ctx context.Context, descriptor domain.Descriptor) error {
	session, err := m.secrets.Get(ctx, descriptor.SecretRef)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return fmt.Errorf("session blob missing: %w", domain.ErrNotAuthorized)
		}
		return fmt.Errorf("load session blob: %w", err)
	}

	client, err := m.dialer.Dial(ctx, descriptor.Phone, session)
	if err != nil {
		return fmt.Errorf("dial %s: %w", descriptor.Phone, err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", descriptor.Phone, err)
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("check authorization for %s: %w", descriptor.Phone, err)
	}
	if !authorized {
		_ = client.Close(ctx)
		return fmt.Errorf("startup check for %s: %w", descriptor.Phone, domain.ErrNotAuthorized)
	}

	displaced, err := m.registry.Insert(descriptor.ID, client)
	if err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("register %s: %w", descriptor.Phone, err)
	}
	if displaced != nil {
		_ = displaced.Close(ctx)
	}
	return nil
}

func (m *Manager) handleLoadFailure(ctx context.Context, descriptor domain.Descriptor, cause error) {
	class, viaFallback := domain.Classify(cause)
	m.logger.Warn("persisted session failed to load",
		"account_id", string(descriptor.ID),
		"operation", "load_persisted",
		"classification", string(class),
		"fallback_match", viaFallback,
		"error", cause)

	if class == domain.ClassPermanent {
		m.Retire(ctx, descriptor.ID, cause)
		return
	}
	// Transient, rate-limited and unknown failures keep the descriptor; the
	// account simply sits out this run.
}

// Retire removes a permanently failed session everywhere: live connection,
// registry entry, persisted descriptor and stored session blob. It is the
// single exit path for revoked credentials, whether discovered at startup or
// mid bulk run.
func (m *Manager) Retire(ctx context.Context, id domain.AccountID, cause error) {
	if entry, ok := m.registry.Get(id); ok {
		if err := entry.Client.Close(ctx); err != nil {
			m.logger.Warn("close client while retiring",
				"account_id", string(id), "error", err)
		}
	}
	m.registry.Remove(id)

	descriptor, err := m.accounts.GetByID(ctx, id)
	if err == nil && descriptor.SecretRef != "" {
		if err := m.secrets.Delete(ctx, descriptor.SecretRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
			m.logger.Error("delete session blob for retired account",
				"account_id", string(id), "error", err)
		}
	}
	if err := m.accounts.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		m.logger.Error("delete descriptor for retired account",
			"account_id", string(id), "error", err)
	}

	m.logger.Info("account retired",
		"account_id", string(id),
		"classification", string(domain.ClassPermanent),
		"error", cause)
	if err := m.notifier.Notify(ctx, fmt.Sprintf("Account %s was removed: credential permanently invalid (%v)", id, cause)); err != nil {
		m.logger.Error("notify operator about retirement",
			"account_id", string(id), "error", err)
	}
}

// Toggle enables or disables an account: enabling connects and registers
// the session, disabling disconnects and removes it. The persisted enabled
// flag is updated in both directions.
func (m *Manager) Toggle(ctx context.Context, id domain.AccountID, enabled bool) error {
	descriptor, err := m.accounts.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account %s: %w", id, err)
	}

	if enabled {
		if m.registry.IsActive(id) {
			return fmt.Errorf("enable %s: %w", id, domain.ErrAccountExists)
		}
		descriptor.Enabled = true
		if err := m.connectAndRegister(ctx, descriptor); err != nil {
			m.handleLoadFailure(ctx, descriptor, err)
			return fmt.Errorf("enable %s: %w", id, err)
		}
	} else {
		if entry, ok := m.registry.Get(id); ok {
			if err := entry.Client.Close(ctx); err != nil {
				m.logger.Warn("close client while disabling",
					"account_id", string(id), "error", err)
			}
		}
		m.registry.Remove(id)
		descriptor.Enabled = false
	}

	if err := m.accounts.Save(ctx, descriptor); err != nil {
		return fmt.Errorf("persist enabled flag for %s: %w", id, err)
	}
	return nil
}

// Delete removes an account entirely: live session, descriptor and stored
// session blob.
func (m *Manager) Delete(ctx context.Context, id domain.AccountID) error {
	if entry, ok := m.registry.Get(id); ok {
		if err := entry.Client.Close(ctx); err != nil {
			m.logger.Warn("close client while deleting",
				"account_id", string(id), "error", err)
		}
	}
	m.registry.Remove(id)

	descriptor, err := m.accounts.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account %s: %w", id, err)
	}
	if descriptor.SecretRef != "" {
		if err := m.secrets.Delete(ctx, descriptor.SecretRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
			return fmt.Errorf("delete session blob for %s: %w", id, err)
		}
	}
	if err := m.accounts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete descriptor for %s: %w", id, err)
	}
	return nil
}
