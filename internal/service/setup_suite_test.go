package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"otc-service/internal/audit"
	"otc-service/internal/config"
	"otc-service/internal/encryption"
	"otc-service/internal/hashing"
	"otc-service/internal/models"
	"otc-service/internal/repository/memory"
	"otc-service/internal/service"
	"otc-service/internal/token"
)

var errSMTPDown = errors.New("smtp: connection refused")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentCode struct {
	to   string
	code string
	kind models.CredentialKind
}

// captureDispatcher remembers every code it was asked to send. When fail is set it still
// records the code, then reports the failure.
type captureDispatcher struct {
	mu   sync.Mutex
	sent []sentCode
	fail error
}

func (d *captureDispatcher) SendCode(_ context.Context, to, code string, kind models.CredentialKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentCode{to: to, code: code, kind: kind})
	return d.fail
}

func (d *captureDispatcher) last() sentCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return sentCode{}
	}
	return d.sent[len(d.sent)-1]
}

func (d *captureDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type captureRecorder struct {
	mu     sync.Mutex
	events []models.AuditEventType
}

func (r *captureRecorder) Record(_ context.Context, event *models.AuditEvent) error {
	r.mu.Lock()
	r.events = append(r.events, event.Type)
	r.mu.Unlock()
	return nil
}

func (r *captureRecorder) types() []models.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditEventType(nil), r.events...)
}

// ServiceSuite wires the services against in-memory backends and a controllable clock.
type ServiceSuite struct {
	suite.Suite

	ctx        context.Context
	clock      *clock
	store      *memory.CredentialStore
	accounts   *memory.AccountRepository
	hasher     *hashing.Hasher
	dispatcher *captureDispatcher
	recorder   *captureRecorder
	tokens     *token.JWTManager
	otp        *service.OTPService
	account    *service.AccountService
}

func (s *ServiceSuite) SetupTest() {
	cfg := &config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Peppers:           []string{"1:service-test-pepper"},
			BcryptCost:        bcrypt.MinCost,
		},
		OTP: config.OTPConfig{
			Length:         6,
			TTL:            10 * time.Minute,
			MaxAttempts:    5,
			ResendCooldown: 60 * time.Second,
		},
	}

	hasher, err := hashing.NewHasher(cfg)
	s.Require().NoError(err)
	sealer, err := encryption.NewLocalManager([]byte("0123456789abcdef0123456789abcdef"))
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.clock = &clock{now: time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)}
	s.store = memory.NewCredentialStore(s.clock.Now)
	s.accounts = memory.NewAccountRepository()
	s.hasher = hasher
	s.dispatcher = &captureDispatcher{}
	s.recorder = &captureRecorder{}
	s.tokens = token.New("service-test-secret", "internconnect", time.Hour)

	factory := service.NewServiceFactory(
		s.store,
		s.accounts,
		hasher,
		sealer,
		s.dispatcher,
		s.tokens,
		audit.NewTrail(s.recorder, nil),
		service.PolicyFromConfig(cfg),
	).WithClock(s.clock.Now)

	s.otp = factory.OTPService()
	s.account = factory.AccountService()
}

func (s *ServiceSuite) hasRecord(kind models.CredentialKind, id string) bool {
	_, err := s.store.Get(s.ctx, kind, id)
	return err == nil
}

func (s *ServiceSuite) attempts(kind models.CredentialKind, id string) int {
	rec, err := s.store.Get(s.ctx, kind, id)
	s.Require().NoError(err)
	return rec.Attempts
}

// wrongCode returns a code of the same length that differs from code.
func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}
