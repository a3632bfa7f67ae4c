package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frhnm/tgfleet/internal/convo"
	"github.com/frhnm/tgfleet/internal/domain"
	"github.com/frhnm/tgfleet/internal/ports"
)

// AuthStep is the state of the add-account machine. Inputs arrive
// asynchronously, one free-text message at a time.
type AuthStep int

const (
	StepPhone AuthStep = iota + 1
	StepCode
	StepPassword
	StepDone
)

func (s AuthStep) String() string {
	switch s {
	case StepPhone:
		return "awaiting_phone"
	case StepCode:
		return "awaiting_code"
	case StepPassword:
		return "awaiting_password"
	case StepDone:
		return "authenticated"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// StepResult tells the caller what to ask the user next. RetryAfter is set
// when the vendor mandated a cooldown for the current step.
type StepResult struct {
	Step       AuthStep
	Prompt     string
	RetryAfter time.Duration
}

// AuthFlow walks one account through phone → code → optional 2FA password.
// A non-nil error from Submit means the current input was rejected; the
// returned step says whether the flow stayed in place or is unrecoverable
// (terminal errors are ErrAccountExists and permanent classifications —
// the caller should tear the flow down for those).
type AuthFlow struct {
	mgr    *Manager
	step   AuthStep
	phone  string
	client ports.Client
}

func (m *Manager) NewAuthFlow() *AuthFlow {
	return &AuthFlow{mgr: m, step: StepPhone}
}

func (f *AuthFlow) Step() AuthStep { return f.step }

func (f *AuthFlow) Submit(ctx context.Context, input string) (StepResult, error) {
	switch f.step {
	case StepPhone:
		return f.submitPhone(ctx, input)
	case StepCode:
		return f.submitCode(ctx, input)
	case StepPassword:
		return f.submitPassword(ctx, input)
	case StepDone:
		return StepResult{Step: StepDone}, errors.New("flow already completed")
	default:
		return StepResult{}, fmt.Errorf("auth flow in impossible step %d", f.step)
	}
}

func (f *AuthFlow) submitPhone(ctx context.Context, input string) (StepResult, error) {
	phone, err := domain.NormalizePhone(input)
	if err != nil {
		return StepResult{Step: StepPhone, Prompt: "Send the phone number in international format."}, err
	}

	id := domain.AccountID(phone)
	if f.mgr.registry.IsActive(id) {
		return StepResult{Step: StepPhone}, fmt.Errorf("%s: %w", phone, domain.ErrAccountExists)
	}
	if _, err := f.mgr.accounts.GetByID(ctx, id); err == nil {
		return StepResult{Step: StepPhone}, fmt.Errorf("%s: %w", phone, domain.ErrAccountExists)
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return StepResult{Step: StepPhone}, fmt.Errorf("check existing account: %w", err)
	}

	client, err := f.mgr.dialer.Dial(ctx, phone, "")
	if err != nil {
		return StepResult{Step: StepPhone}, fmt.Errorf("dial: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return StepResult{Step: StepPhone}, fmt.Errorf("connect: %w", err)
	}
	if err := client.SendCode(ctx, phone); err != nil {
		_ = client.Close(ctx)
		return f.stepError(StepPhone, err)
	}

	f.phone = phone
	f.client = client
	f.step = StepCode
	return StepResult{Step: StepCode, Prompt: "Send the verification code you received."}, nil
}

func (f *AuthFlow) submitCode(ctx context.Context, code string) (StepResult, error) {
	err := f.client.SignIn(ctx, f.phone, code)
	if err == nil {
		return f.finalize(ctx)
	}

	var passwordNeeded *domain.PasswordNeededError
	if errors.As(err, &passwordNeeded) {
		f.step = StepPassword
		return StepResult{Step: StepPassword, Prompt: "Send the two-factor password."}, nil
	}
	var codeInvalid *domain.CodeInvalidError
	if errors.As(err, &codeInvalid) {
		return StepResult{Step: StepCode, Prompt: "Send the verification code you received."}, err
	}
	return f.stepError(StepCode, err)
}

func (f *AuthFlow) submitPassword(ctx context.Context, password string) (StepResult, error) {
	if err := f.client.SignInWithPassword(ctx, password); err != nil {
		return f.stepError(StepPassword, err)
	}
	return f.finalize(ctx)
}

func (f *AuthFlow) finalize(ctx context.Context) (StepResult, error) {
	session, err := f.client.ExportSession(ctx)
	if err != nil {
		return f.stepError(f.step, fmt.Errorf("export session: %w", err))
	}

	id := domain.AccountID(f.phone)
	secretRef := domain.SecretRefForPhone(f.phone)
	if err := f.mgr.secrets.Put(ctx, secretRef, session); err != nil {
		return f.stepError(f.step, fmt.Errorf("store session blob: %w", err))
	}

	descriptor := domain.Descriptor{
		ID:        id,
		Phone:     f.phone,
		Enabled:   true,
		SecretRef: secretRef,
		AddedAt:   f.mgr.clock.Now(),
	}
	if err := f.mgr.accounts.Save(ctx, descriptor); err != nil {
		return f.stepError(f.step, fmt.Errorf("persist descriptor: %w", err))
	}
	displaced, err := f.mgr.registry.Insert(id, f.client)
	if err != nil {
		return f.stepError(f.step, fmt.Errorf("register session: %w", err))
	}
	if displaced != nil {
		_ = displaced.Close(ctx)
	}

	f.step = StepDone
	f.mgr.logger.Info("account added",
		"account_id", string(id),
		"operation", "add_account")
	return StepResult{Step: StepDone, Prompt: fmt.Sprintf("Account %s added.", f.phone)}, nil
}

// stepError keeps the flow on the current step and surfaces the vendor's
// mandated wait when there is one.
func (f *AuthFlow) stepError(step AuthStep, err error) (StepResult, error) {
	result := StepResult{Step: step}
	var flood *domain.FloodWaitError
	if errors.As(err, &flood) {
		result.RetryAfter = flood.RetryAfter
	}
	return result, err
}

// Cancel disconnects the half-authenticated client, if any.
func (f *AuthFlow) Cancel(ctx context.Context) {
	if f.client != nil && f.step != StepDone {
		_ = f.client.Close(ctx)
	}
}

// Terminal reports whether an error from Submit should tear the flow down
// rather than keep it waiting on the same step.
func Terminal(err error) bool {
	if errors.Is(err, domain.ErrAccountExists) {
		return true
	}
	class, _ := domain.Classify(err)
	return class == domain.ClassPermanent
}

// RegisterAddAccountFlow wires the add-account machine into the tracker.
// reply is how step prompts and inline errors reach the user. Error exits
// remove the conversation entry (the tracker does that on error returns and
// on Done), so no chat is ever stranded mid-flow.
func (m *Manager) RegisterAddAccountFlow(tracker *convo.Tracker, reply func(string)) error {
	return tracker.Register(convo.FlowAddAccount, func(ctx context.Context, message string, data any) (convo.Disposition, error) {
		flow, ok := data.(*AuthFlow)
		if !ok {
			return convo.Done, fmt.Errorf("add-account flow carries unexpected data %T", data)
		}

		result, err := flow.Submit(ctx, message)
		switch {
		case err == nil && result.Step == StepDone:
			reply(result.Prompt)
			return convo.Done, nil
		case err == nil:
			reply(result.Prompt)
			return convo.Retain, nil
		case Terminal(err):
			flow.Cancel(ctx)
			return convo.Done, err
		default:
			msg := fmt.Sprintf("That didn't work: %v.", err)
			if result.RetryAfter > 0 {
				msg = fmt.Sprintf("%s Try again in %s.", msg, result.RetryAfter)
			} else if result.Prompt != "" {
				msg = msg + " " + result.Prompt
			}
			reply(msg)
			return convo.Retain, nil
		}
	})
}

// BeginAddAccount opens the add-account flow for a chat.
func (m *Manager) BeginAddAccount(tracker *convo.Tracker, chatID int64) error {
	return tracker.Begin(chatID, convo.FlowAddAccount, m.NewAuthFlow())
}
