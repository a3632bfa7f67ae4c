package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type AccountID string

// SessionStatus describes whether a registered session may be handed out
// for operations.
type SessionStatus string

const (
	StatusActive   SessionStatus = "active"
	StatusDisabled SessionStatus = "disabled"
	StatusRevoked  SessionStatus = "revoked"
)

// Descriptor is the persisted record for one account. The credential blob
// itself lives in the secret store; the descriptor only carries the ref.
type Descriptor struct {
	ID        AccountID
	Phone     string
	Enabled   bool
	SecretRef string
	AddedAt   time.Time
}

func (d Descriptor) Validate() error {
	if strings.TrimSpace(string(d.ID)) == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := NormalizePhone(d.Phone); err != nil {
		return err
	}
	return nil
}

var phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)

// NormalizePhone trims whitespace and validates the international phone
// format used as the account identifier.
func NormalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	if phone == "" {
		return "", fmt.Errorf("%w: empty phone number", ErrInvalidPhone)
	}
	if !phonePattern.MatchString(phone) {
		return "", fmt.Errorf("%w: %q (expected +<10-15 digits>)", ErrInvalidPhone, phone)
	}
	return phone, nil
}

// SecretRefForPhone is the canonical secret store key for an account's
// session blob.
func SecretRefForPhone(phone string) string {
	return "tgfleet://" + phone + "/session"
}
