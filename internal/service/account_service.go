package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"otc-service/internal/hashing"
	"otc-service/internal/models"
	"otc-service/internal/repository"
	"otc-service/internal/token"
	"otc-service/internal/util"
)

var validate = validator.New()

// PayloadSealer protects signup payloads at rest.
type PayloadSealer interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, sealed []byte) ([]byte, error)
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role" validate:"required,oneof=student company"`
}

type PasswordResetRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Code        string `json:"code" validate:"required,numeric,max=32"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

type SignupResult struct {
	Account   *models.Account
	Token     string
	ExpiresAt time.Time
}

// AccountService binds the signup and password-reset flows to the OTP mechanism.
type AccountService struct {
	otp      *OTPService
	accounts repository.AccountRepository
	hasher   *hashing.Hasher
	sealer   PayloadSealer
	tokens   *token.JWTManager
}

func NewAccountService(
	otp *OTPService,
	accounts repository.AccountRepository,
	hasher *hashing.Hasher,
	sealer PayloadSealer,
	tokens *token.JWTManager,
) *AccountService {
	return &AccountService{
		otp:      otp,
		accounts: accounts,
		hasher:   hasher,
		sealer:   sealer,
		tokens:   tokens,
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed on %s", ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// StartSignup issues a signup code carrying the sealed pending account. Whether the email
// is already registered is only decided at verification.
func (a *AccountService) StartSignup(ctx context.Context, req SignupRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = util.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	passwordHash, err := a.hasher.HashPassword(req.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	plain, err := json.Marshal(&models.PendingSignup{
		Name:         req.Name,
		Email:        req.Email,
		Role:         models.Role(req.Role),
		PasswordHash: passwordHash,
	})
	if err != nil {
		return fmt.Errorf("failed to encode pending signup: %w", err)
	}
	sealed, err := a.sealer.Seal(ctx, plain)
	if err != nil {
		return fmt.Errorf("failed to seal pending signup: %w", err)
	}

	return a.otp.Issue(ctx, models.KindSignup, req.Email, sealed)
}

func (a *AccountService) ResendSignup(ctx context.Context, email string) error {
	return a.otp.Resend(ctx, models.KindSignup, email)
}

// VerifySignup materialises the pending signup into an account and signs an access token.
func (a *AccountService) VerifySignup(ctx context.Context, email, code string) (*SignupResult, error) {
	var result *SignupResult

	err := a.otp.Verify(ctx, models.KindSignup, email, code, func(ctx context.Context, rec *models.CredentialRecord) error {
		pending, err := a.openPending(ctx, rec)
		if err != nil {
			return err
		}

		account := &models.Account{
			ID:           uuid.New().String(),
			Name:         pending.Name,
			Email:        rec.Identifier,
			Role:         pending.Role,
			PasswordHash: pending.PasswordHash,
			IsVerified:   true,
		}
		signed, exp, err := a.tokens.IssueAccess(account)
		if err != nil {
			return err
		}

		if err := a.accounts.Create(ctx, account); err != nil {
			if errors.Is(err, repository.ErrAccountExists) {
				return ErrAccountExists
			}
			return err
		}

		result = &SignupResult{Account: account, Token: signed, ExpiresAt: exp}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// openPending fails terminally when the payload cannot be recovered; no retry would help.
func (a *AccountService) openPending(ctx context.Context, rec *models.CredentialRecord) (*models.PendingSignup, error) {
	if len(rec.Payload) == 0 {
		return nil, fmt.Errorf("%w: signup payload missing", ErrNotFoundOrExpired)
	}
	plain, err := a.sealer.Open(ctx, rec.Payload)
	if err != nil {
		util.Error("Failed to open signup payload", util.ErrorField(err))
		return nil, fmt.Errorf("%w: signup payload unreadable", ErrNotFoundOrExpired)
	}

	var pending models.PendingSignup
	if err := json.Unmarshal(plain, &pending); err != nil {
		return nil, fmt.Errorf("%w: signup payload malformed", ErrNotFoundOrExpired)
	}
	if pending.Email != rec.Identifier {
		return nil, fmt.Errorf("%w: signup payload does not match identifier", ErrNotFoundOrExpired)
	}
	return &pending, nil
}

// StartPasswordReset issues a reset code only for registered emails. Registered and unknown
// emails get the same result, cooldown included.
func (a *AccountService) StartPasswordReset(ctx context.Context, email string) error {
	email = util.NormalizeEmail(email)
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return fmt.Errorf("%w: a valid email address is required", ErrValidation)
	}

	if _, err := a.accounts.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, repository.ErrAccountMissing) {
			util.Debug("Password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	// Registered and unknown emails must answer alike; cooldown and delivery failures are
	// only logged.
	err := a.otp.Issue(ctx, models.KindPasswordReset, email, nil)
	switch {
	case errors.Is(err, ErrResendTooSoon):
		util.Debug("Password reset requested during cooldown, no code sent")
		return nil
	case errors.Is(err, ErrDispatchFailed):
		util.Warn("Password reset code could not be delivered", util.ErrorField(err))
		return nil
	}
	return err
}

// VerifyPasswordReset checks the code and swaps in the new password. The new password is
// validated before the code so a bad password never costs an attempt.
func (a *AccountService) VerifyPasswordReset(ctx context.Context, req PasswordResetRequest) error {
	req.Email = util.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	passwordHash, err := a.hasher.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return a.otp.Verify(ctx, models.KindPasswordReset, req.Email, req.Code, func(ctx context.Context, rec *models.CredentialRecord) error {
		if err := a.accounts.UpdatePassword(ctx, rec.Identifier, passwordHash); err != nil {
			if errors.Is(err, repository.ErrAccountMissing) {
				return fmt.Errorf("%w: account no longer exists", ErrNotFoundOrExpired)
			}
			return err
		}
		util.Info("Password reset completed")
		return nil
	})
}
