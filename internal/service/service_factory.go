package service

import (
	"time"

	"otc-service/internal/audit"
	"otc-service/internal/config"
	"otc-service/internal/hashing"
	"otc-service/internal/notify"
	"otc-service/internal/repository"
	"otc-service/internal/token"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	store      repository.CredentialStore
	accounts   repository.AccountRepository
	hasher     *hashing.Hasher
	sealer     PayloadSealer
	dispatcher notify.Dispatcher
	tokens     *token.JWTManager
	trail      *audit.Trail
	policy     Policy
	now        func() time.Time

	otpService     *OTPService
	accountService *AccountService
}

func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		CodeLength:     cfg.OTP.Length,
		TTL:            cfg.OTP.TTL,
		MaxAttempts:    cfg.OTP.MaxAttempts,
		ResendCooldown: cfg.OTP.ResendCooldown,
	}
}

func NewServiceFactory(
	store repository.CredentialStore,
	accounts repository.AccountRepository,
	hasher *hashing.Hasher,
	sealer PayloadSealer,
	dispatcher notify.Dispatcher,
	tokens *token.JWTManager,
	trail *audit.Trail,
	policy Policy,
) *ServiceFactory {
	return &ServiceFactory{
		store:      store,
		accounts:   accounts,
		hasher:     hasher,
		sealer:     sealer,
		dispatcher: dispatcher,
		tokens:     tokens,
		trail:      trail,
		policy:     policy,
		now:        time.Now,
	}
}

// WithClock must be called before the first service is built.
func (f *ServiceFactory) WithClock(now func() time.Time) *ServiceFactory {
	f.now = now
	return f
}

// OTPService returns the otp service instance (singleton)
func (f *ServiceFactory) OTPService() *OTPService {
	if f.otpService == nil {
		f.otpService = NewOTPService(f.store, f.hasher, f.dispatcher, f.trail, f.policy).WithClock(f.now)
	}
	return f.otpService
}

// AccountService returns the account service instance (singleton)
func (f *ServiceFactory) AccountService() *AccountService {
	if f.accountService == nil {
		f.accountService = NewAccountService(f.OTPService(), f.accounts, f.hasher, f.sealer, f.tokens)
	}
	return f.accountService
}
