package toml

import (
	"fmt"
	"time"

	"github.com/frhnm/tgfleet/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}
	return nil
}

type accountSchema struct {
	ID        string `toml:"id"`
	Phone     string `toml:"phone"`
	Enabled   bool   `toml:"enabled"`
	SecretRef string `toml:"secret_ref"`
	AddedAt   string `toml:"added_at,omitempty"`
}

func toSchema(descriptor domain.Descriptor) accountSchema {
	entry := accountSchema{
		ID:        string(descriptor.ID),
		Phone:     descriptor.Phone,
		Enabled:   descriptor.Enabled,
		SecretRef: descriptor.SecretRef,
	}
	if !descriptor.AddedAt.IsZero() {
		entry.AddedAt = descriptor.AddedAt.UTC().Format(time.RFC3339)
	}
	return entry
}

func fromSchema(entry accountSchema) domain.Descriptor {
	descriptor := domain.Descriptor{
		ID:        domain.AccountID(entry.ID),
		Phone:     entry.Phone,
		Enabled:   entry.Enabled,
		SecretRef: entry.SecretRef,
	}
	if entry.AddedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, entry.AddedAt); err == nil {
			descriptor.AddedAt = parsed
		}
	}
	return descriptor
}
