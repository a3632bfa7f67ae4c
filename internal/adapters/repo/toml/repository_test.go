package toml

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frhnm/tgfleet/internal/domain"
)

func newTestRepository(t *testing.T) (*Repository, string) {
	t.Helper()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	config := viper.New()
	config.Set("accounts.path", accountsPath)

	repo, err := NewRepository(config)
	require.NoError(t, err)
	return repo, accountsPath
}

func testDescriptor(phone string) domain.Descriptor {
	return domain.Descriptor{
		ID:        domain.AccountID(phone),
		Phone:     phone,
		Enabled:   true,
		SecretRef: domain.SecretRefForPhone(phone),
		AddedAt:   time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	first := testDescriptor("+15550001111")
	second := testDescriptor("+15550002222")
	second.Enabled = false

	require.NoError(t, repo.Save(context.Background(), first))
	require.NoError(t, repo.Save(context.Background(), second))

	got, err := repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	descriptors, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Descriptor{first, second}, descriptors)
}

func TestRepositorySaveUpdatesExisting(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	descriptor := testDescriptor("+15550001111")
	require.NoError(t, repo.Save(context.Background(), descriptor))

	descriptor.Enabled = false
	require.NoError(t, repo.Save(context.Background(), descriptor))

	descriptors, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.False(t, descriptors[0].Enabled)
}

func TestRepositorySaveRejectsInvalidDescriptor(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	bad := testDescriptor("+15550001111")
	bad.Phone = "nope"

	assert.ErrorIs(t, repo.Save(context.Background(), bad), domain.ErrInvalidPhone)
}

func TestRepositoryGetByIDMissing(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	_, err := repo.GetByID(context.Background(), "+15550009999")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRepositoryListEmptyWhenFileAbsent(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	descriptors, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestRepositoryDelete(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	descriptor := testDescriptor("+15550001111")
	require.NoError(t, repo.Save(context.Background(), descriptor))

	require.NoError(t, repo.Delete(context.Background(), descriptor.ID))
	assert.ErrorIs(t, repo.Delete(context.Background(), descriptor.ID), domain.ErrAccountNotFound)

	descriptors, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestRepositoryWritesVersionedFileWithTightModes(t *testing.T) {
	t.Parallel()

	repo, accountsPath := newTestRepository(t)
	require.NoError(t, repo.Save(context.Background(), testDescriptor("+15550001111")))

	info, err := os.Stat(accountsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(accountsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "+15550001111")
}

func TestRepositoryRejectsNewerSchemaVersion(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	require.NoError(t, os.WriteFile(accountsPath, []byte("version = 99\n"), 0o600))

	config := viper.New()
	config.Set("accounts.path", accountsPath)
	repo, err := NewRepository(config)
	require.NoError(t, err)

	_, err = repo.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported accounts schema version")
}

func TestRepositoryReadsHandWrittenFile(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	content := strings.Join([]string{
		"version = 1",
		"",
		"[[accounts]]",
		"id = \"+15550001111\"",
		"phone = \"+15550001111\"",
		"enabled = true",
		"secret_ref = \"tgfleet://+15550001111/session\"",
		"added_at = \"2026-02-01T10:30:00Z\"",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(accountsPath, []byte(content), 0o600))

	config := viper.New()
	config.Set("accounts.path", accountsPath)
	repo, err := NewRepository(config)
	require.NoError(t, err)

	got, err := repo.GetByID(context.Background(), "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, testDescriptor("+15550001111"), got)
}

func TestRepositoryCancelledContext(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, repo.Save(ctx, testDescriptor("+15550001111")), context.Canceled)
}
