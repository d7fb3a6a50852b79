package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"otc-service/internal/audit"
	"otc-service/internal/hashing"
	"otc-service/internal/models"
	"otc-service/internal/notify"
	"otc-service/internal/repository"
	"otc-service/internal/util"
)

const maxCodeInput = 32

// Policy holds the issuance and verification limits.
type Policy struct {
	CodeLength     int
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
}

// FollowUp is the domain action run after a code matches. The record is deleted only when
// it returns nil, or when it fails with a terminal error (see isTerminal).
type FollowUp func(ctx context.Context, rec *models.CredentialRecord) error

// OTPService issues and verifies one-time credentials. The CredentialStore is the only
// shared state it touches.
type OTPService struct {
	store      repository.CredentialStore
	hasher     *hashing.Hasher
	dispatcher notify.Dispatcher
	trail      *audit.Trail
	policy     Policy
	now        func() time.Time
}

func NewOTPService(
	store repository.CredentialStore,
	hasher *hashing.Hasher,
	dispatcher notify.Dispatcher,
	trail *audit.Trail,
	policy Policy,
) *OTPService {
	return &OTPService{
		store:      store,
		hasher:     hasher,
		dispatcher: dispatcher,
		trail:      trail,
		policy:     policy,
		now:        time.Now,
	}
}

// WithClock replaces the time source; expiry and cooldown decisions all go through it.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

func (s *OTPService) Policy() Policy {
	return s.policy
}

func normalizeIdentifier(identifier string) (string, error) {
	id := util.NormalizeEmail(identifier)
	if !util.IsEmail(id) {
		return "", fmt.Errorf("%w: a valid email address is required", ErrValidation)
	}
	return id, nil
}

// Issue creates a fresh credential for (kind, identifier), replacing any previous one, and
// dispatches the code. A live record younger than the cooldown blocks issuance.
func (s *OTPService) Issue(ctx context.Context, kind models.CredentialKind, identifier string, payload []byte) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown credential kind %q", ErrValidation, kind)
	}
	id, err := normalizeIdentifier(identifier)
	if err != nil {
		return err
	}

	existing, err := s.store.Get(ctx, kind, id)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		return fmt.Errorf("failed to check pending credential: %w", err)
	}
	if err := s.checkCooldown(existing); err != nil {
		return err
	}

	return s.issue(ctx, kind, id, payload, models.EventIssued)
}

// Resend reissues a code for a live record, keeping its payload. The cooldown applies as
// for Issue.
func (s *OTPService) Resend(ctx context.Context, kind models.CredentialKind, identifier string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown credential kind %q", ErrValidation, kind)
	}
	id, err := normalizeIdentifier(identifier)
	if err != nil {
		return err
	}

	existing, err := s.store.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return ErrNotFoundOrExpired
		}
		return fmt.Errorf("failed to load pending credential: %w", err)
	}
	if existing.IsExpired(s.now()) {
		return ErrNotFoundOrExpired
	}
	if err := s.checkCooldown(existing); err != nil {
		return err
	}

	return s.issue(ctx, kind, id, existing.Payload, models.EventResent)
}

func (s *OTPService) checkCooldown(existing *models.CredentialRecord) error {
	if existing == nil || s.policy.ResendCooldown <= 0 {
		return nil
	}
	now := s.now()
	if !existing.IsExpired(now) && now.Sub(existing.CreatedAt) < s.policy.ResendCooldown {
		return ErrResendTooSoon
	}
	return nil
}

func (s *OTPService) issue(ctx context.Context, kind models.CredentialKind, id string, payload []byte, event models.AuditEventType) error {
	code, err := hashing.GenerateCode(s.policy.CodeLength)
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}
	codeHash, err := s.hasher.HashCode(code, string(kind))
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	now := s.now().UTC()
	rec := &models.CredentialRecord{
		Identifier: id,
		Kind:       kind,
		CodeHash:   codeHash,
		ExpiresAt:  now.Add(s.policy.TTL),
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	if err := s.dispatcher.SendCode(ctx, id, code, kind); err != nil {
		util.Error("Code dispatch failed, credential kept",
			util.String("kind", string(kind)),
			util.ErrorField(err))
		s.trail.Emit(ctx, models.EventDispatchFailed, kind, id, 0)
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	s.trail.Emit(ctx, event, kind, id, 0)
	util.Debug("Credential issued",
		util.String("kind", string(kind)),
		util.String("identifier", id),
		util.Time("expires_at", rec.ExpiresAt))
	return nil
}

// Verify checks code against the live record for (kind, identifier). Expiry is decided
// here from ExpiresAt; store-side eviction is only cleanup.
func (s *OTPService) Verify(ctx context.Context, kind models.CredentialKind, identifier, code string, action FollowUp) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown credential kind %q", ErrValidation, kind)
	}
	id, err := normalizeIdentifier(identifier)
	if err != nil {
		return err
	}
	if code == "" || len(code) > maxCodeInput {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}

	rec, err := s.store.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return ErrNotFoundOrExpired
		}
		return fmt.Errorf("failed to load credential: %w", err)
	}

	if rec.IsExpired(s.now()) {
		s.discard(ctx, kind, id)
		s.trail.Emit(ctx, models.EventExpired, kind, id, rec.Attempts)
		return ErrNotFoundOrExpired
	}

	if rec.IsLocked(s.policy.MaxAttempts) {
		s.trail.Emit(ctx, models.EventLocked, kind, id, rec.Attempts)
		return ErrTooManyAttempts
	}

	// The attempt is reserved before comparing, so concurrent guesses cannot share one
	// budget slot. A count past the limit means other requests took the remaining slots.
	attempts, err := s.store.IncrementAttempts(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return ErrNotFoundOrExpired
		}
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	if attempts > s.policy.MaxAttempts {
		s.trail.Emit(ctx, models.EventLocked, kind, id, attempts)
		return ErrTooManyAttempts
	}

	ok, err := s.hasher.VerifyCode(code, string(kind), rec.CodeHash)
	if err != nil {
		// The hash can never match again (retired pepper or corrupt encoding).
		util.Error("Stored code hash unusable, discarding credential",
			util.String("kind", string(kind)),
			util.ErrorField(err))
		s.discard(ctx, kind, id)
		return ErrNotFoundOrExpired
	}

	if !ok {
		s.trail.Emit(ctx, models.EventInvalidCode, kind, id, attempts)
		return ErrInvalidCode
	}

	if action != nil {
		if err := action(ctx, rec); err != nil {
			if isTerminal(err) {
				s.discard(ctx, kind, id)
				s.trail.Emit(ctx, models.EventConflict, kind, id, attempts)
				return err
			}
			return fmt.Errorf("follow-up action failed: %w", err)
		}
	}

	if err := s.store.Delete(ctx, kind, id); err != nil {
		// The follow-up already happened; reporting failure here would invite a retry of it.
		util.Error("Failed to delete consumed credential",
			util.String("kind", string(kind)),
			util.String("identifier", id),
			util.ErrorField(err))
	}
	s.trail.Emit(ctx, models.EventVerified, kind, id, attempts)
	return nil
}

func (s *OTPService) discard(ctx context.Context, kind models.CredentialKind, id string) {
	if err := s.store.Delete(ctx, kind, id); err != nil {
		util.Warn("Failed to delete credential",
			util.String("kind", string(kind)),
			util.ErrorField(err))
	}
}
