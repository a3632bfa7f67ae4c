package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Classification is the failure taxonomy shared by the lifecycle manager and
// the bulk executor. Deciding it in one place keeps the two call sites from
// drifting apart.
type Classification string

const (
	// ClassPermanent: the vendor confirmed the credential itself is invalid.
	// The session must be retired; retrying can never succeed.
	ClassPermanent Classification = "permanent"
	// ClassRateLimited: the vendor mandated a cooldown before retrying. The
	// session stays usable.
	ClassRateLimited Classification = "rate_limited"
	// ClassTransient: recoverable (network, timeout). Retry with backoff.
	ClassTransient Classification = "transient"
	// ClassUnknown: not recognized. Retried like a transient failure but
	// logged separately for operator attention.
	ClassUnknown Classification = "unknown"
)

// RevokedError reports that the vendor invalidated the credential
// (session revoked, de-registered, unauthorized).
type RevokedError struct {
	Reason string
}

func (e *RevokedError) Error() string {
	if e.Reason == "" {
		return "session revoked"
	}
	return "session revoked: " + e.Reason
}

// FloodWaitError carries the vendor-mandated cooldown.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.RetryAfter)
}

// CodeInvalidError reports a wrong verification code during sign-in. It is
// flow control for the auth state machine, not a session failure.
type CodeInvalidError struct{}

func (e *CodeInvalidError) Error() string { return "verification code is invalid" }

// PasswordNeededError reports that the account has two-factor auth enabled
// and sign-in must continue with the password step.
type PasswordNeededError struct{}

func (e *PasswordNeededError) Error() string { return "two-factor password required" }

// Classify maps an error from a vendor call onto the taxonomy. It decides on
// structured error types first; the string fallback exists only for
// categories the vendor binding does not distinguish, and the second return
// reports when it was used so callers can log the fallback hit for audit.
func Classify(err error) (Classification, bool) {
	if err == nil {
		return "", false
	}

	var revoked *RevokedError
	if errors.As(err, &revoked) {
		return ClassPermanent, false
	}
	var flood *FloodWaitError
	if errors.As(err, &flood) {
		return ClassRateLimited, false
	}
	if errors.Is(err, ErrNotAuthorized) {
		return ClassPermanent, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient, false
	}

	if class, ok := classifyMessage(err.Error()); ok {
		return class, true
	}

	return ClassUnknown, false
}

// classifyMessage is the narrow string fallback. Wording can change across
// vendor library versions, so the match list stays short and every hit is
// surfaced to the caller via Classify's second return.
func classifyMessage(msg string) (Classification, bool) {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"session revoked", "auth key unregistered", "not logged in"} {
		if strings.Contains(msg, marker) {
			return ClassPermanent, true
		}
	}
	for _, marker := range []string{"connection", "network", "timeout", "temporary"} {
		if strings.Contains(msg, marker) {
			return ClassTransient, true
		}
	}
	return "", false
}
