package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"otc-service/internal/models"
	"otc-service/internal/service"
)

type AccountServiceSuite struct {
	ServiceSuite
}

func TestAccountServiceSuite(t *testing.T) {
	suite.Run(t, new(AccountServiceSuite))
}

func (s *AccountServiceSuite) signup(email string) string {
	s.Require().NoError(s.account.StartSignup(s.ctx, service.SignupRequest{
		Name:     "Bob Builder",
		Email:    email,
		Password: "s3cret-pass",
		Role:     "student",
	}))
	return s.dispatcher.last().code
}

func (s *AccountServiceSuite) seedAccount(email, password string) {
	hash, err := s.hasher.HashPassword(password)
	s.Require().NoError(err)
	s.Require().NoError(s.accounts.Create(s.ctx, &models.Account{
		Name:         "Existing",
		Email:        email,
		Role:         models.RoleCompany,
		PasswordHash: hash,
		IsVerified:   true,
	}))
}

func (s *AccountServiceSuite) TestSignupCreatesAccount() {
	code := s.signup("Bob@Example.com")

	rec, err := s.store.Get(s.ctx, models.KindSignup, "bob@example.com")
	s.Require().NoError(err)
	s.NotContains(string(rec.Payload), "s3cret-pass")
	s.NotContains(string(rec.Payload), "Bob Builder")

	result, err := s.account.VerifySignup(s.ctx, "bob@example.com", code)
	s.Require().NoError(err)
	s.Equal("bob@example.com", result.Account.Email)
	s.Equal("Bob Builder", result.Account.Name)
	s.Equal(models.RoleStudent, result.Account.Role)
	s.True(result.Account.IsVerified)
	s.NotEmpty(result.Token)

	claims, err := s.tokens.Parse(result.Token)
	s.Require().NoError(err)
	s.Equal(result.Account.ID, claims.Subject)
	s.Equal("student", claims.Role)

	stored, err := s.accounts.GetByEmail(s.ctx, "bob@example.com")
	s.Require().NoError(err)
	s.True(s.hasher.ComparePassword(stored.PasswordHash, "s3cret-pass"))
	s.False(s.hasRecord(models.KindSignup, "bob@example.com"))
}

func (s *AccountServiceSuite) TestSignupCooldown() {
	s.signup("alice@example.com")

	err := s.account.StartSignup(s.ctx, service.SignupRequest{
		Name: "Alice", Email: "alice@example.com", Password: "another-pass", Role: "company",
	})
	s.ErrorIs(err, service.ErrResendTooSoon)
	s.Equal(1, s.dispatcher.count())
}

func (s *AccountServiceSuite) TestSignupLockedOutCreatesNothing() {
	code := s.signup("alice@example.com")

	for i := 0; i < 5; i++ {
		_, err := s.account.VerifySignup(s.ctx, "alice@example.com", wrongCode(code))
		s.ErrorIs(err, service.ErrInvalidCode)
	}
	_, err := s.account.VerifySignup(s.ctx, "alice@example.com", code)
	s.ErrorIs(err, service.ErrTooManyAttempts)

	_, err = s.accounts.GetByEmail(s.ctx, "alice@example.com")
	s.Error(err)
}

func (s *AccountServiceSuite) TestSignupExpired() {
	code := s.signup("alice@example.com")
	s.clock.Advance(11 * time.Minute)

	_, err := s.account.VerifySignup(s.ctx, "alice@example.com", code)
	s.ErrorIs(err, service.ErrNotFoundOrExpired)
}

func (s *AccountServiceSuite) TestSignupForExistingAccountConflicts() {
	s.seedAccount("bob@example.com", "original-pass")
	code := s.signup("bob@example.com")

	_, err := s.account.VerifySignup(s.ctx, "bob@example.com", code)
	s.ErrorIs(err, service.ErrAccountExists)
	s.False(s.hasRecord(models.KindSignup, "bob@example.com"))

	stored, err := s.accounts.GetByEmail(s.ctx, "bob@example.com")
	s.Require().NoError(err)
	s.True(s.hasher.ComparePassword(stored.PasswordHash, "original-pass"))
}

func (s *AccountServiceSuite) TestSignupTamperedPayload() {
	code := s.signup("bob@example.com")

	rec, err := s.store.Get(s.ctx, models.KindSignup, "bob@example.com")
	s.Require().NoError(err)
	rec.Payload = []byte(`{"version":"v1","encrypted_value":"AAAA","encrypted_dek":"AAAA"}`)
	s.Require().NoError(s.store.Put(s.ctx, rec))

	_, err = s.account.VerifySignup(s.ctx, "bob@example.com", code)
	s.ErrorIs(err, service.ErrNotFoundOrExpired)
	s.False(s.hasRecord(models.KindSignup, "bob@example.com"))
}

func (s *AccountServiceSuite) TestSignupValidation() {
	valid := service.SignupRequest{Name: "Bob", Email: "bob@example.com", Password: "s3cret-pass", Role: "student"}

	tests := []struct {
		name   string
		mutate func(r *service.SignupRequest)
	}{
		{"missing name", func(r *service.SignupRequest) { r.Name = "  " }},
		{"bad email", func(r *service.SignupRequest) { r.Email = "bob-at-example" }},
		{"short password", func(r *service.SignupRequest) { r.Password = "12345" }},
		{"admin role", func(r *service.SignupRequest) { r.Role = "admin" }},
		{"empty role", func(r *service.SignupRequest) { r.Role = "" }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := valid
			tt.mutate(&req)
			s.ErrorIs(s.account.StartSignup(s.ctx, req), service.ErrValidation)
		})
	}
	s.Equal(0, s.store.Len())
}

func (s *AccountServiceSuite) TestResendSignup() {
	s.signup("bob@example.com")
	s.clock.Advance(time.Minute)

	s.Require().NoError(s.account.ResendSignup(s.ctx, "bob@example.com"))
	code := s.dispatcher.last().code

	result, err := s.account.VerifySignup(s.ctx, "bob@example.com", code)
	s.Require().NoError(err)
	s.Equal("Bob Builder", result.Account.Name)
}

func (s *AccountServiceSuite) TestPasswordResetUnknownEmailIsSilent() {
	s.NoError(s.account.StartPasswordReset(s.ctx, "ghost@example.com"))
	s.Equal(0, s.dispatcher.count())
	s.Equal(0, s.store.Len())
}

func (s *AccountServiceSuite) TestPasswordResetSendLooksTheSameForKnownAndUnknown() {
	s.seedAccount("known@example.com", "old-password")

	for i := 0; i < 2; i++ {
		known := s.account.StartPasswordReset(s.ctx, "known@example.com")
		unknown := s.account.StartPasswordReset(s.ctx, "unknown@example.com")
		s.NoError(known, "send %d", i+1)
		s.NoError(unknown, "send %d", i+1)
	}
	// The cooldown still held: only the first send produced a code.
	s.Equal(1, s.dispatcher.count())
}

func (s *AccountServiceSuite) TestPasswordResetDispatchFailureIsSilent() {
	s.seedAccount("known@example.com", "old-password")
	s.dispatcher.fail = errSMTPDown

	s.NoError(s.account.StartPasswordReset(s.ctx, "known@example.com"))
	s.True(s.hasRecord(models.KindPasswordReset, "known@example.com"))
	s.Contains(s.recorder.types(), models.EventDispatchFailed)
}

func (s *AccountServiceSuite) TestPasswordReset() {
	s.seedAccount("carol@example.com", "old-password")
	s.Require().NoError(s.account.StartPasswordReset(s.ctx, "Carol@example.com"))
	code := s.dispatcher.last().code
	s.Equal(models.KindPasswordReset, s.dispatcher.last().kind)

	req := service.PasswordResetRequest{Email: "carol@example.com", Code: code, NewPassword: "new-password"}
	s.Require().NoError(s.account.VerifyPasswordReset(s.ctx, req))

	stored, err := s.accounts.GetByEmail(s.ctx, "carol@example.com")
	s.Require().NoError(err)
	s.True(s.hasher.ComparePassword(stored.PasswordHash, "new-password"))
	s.False(s.hasRecord(models.KindPasswordReset, "carol@example.com"))

	s.ErrorIs(s.account.VerifyPasswordReset(s.ctx, req), service.ErrNotFoundOrExpired)
}

func (s *AccountServiceSuite) TestPasswordResetBadPasswordCostsNoAttempt() {
	s.seedAccount("carol@example.com", "old-password")
	s.Require().NoError(s.account.StartPasswordReset(s.ctx, "carol@example.com"))
	code := s.dispatcher.last().code

	err := s.account.VerifyPasswordReset(s.ctx, service.PasswordResetRequest{
		Email: "carol@example.com", Code: wrongCode(code), NewPassword: "short",
	})
	s.ErrorIs(err, service.ErrValidation)
	s.Equal(0, s.attempts(models.KindPasswordReset, "carol@example.com"))
}

func (s *AccountServiceSuite) TestPasswordResetWrongCode() {
	s.seedAccount("carol@example.com", "old-password")
	s.Require().NoError(s.account.StartPasswordReset(s.ctx, "carol@example.com"))
	code := s.dispatcher.last().code

	err := s.account.VerifyPasswordReset(s.ctx, service.PasswordResetRequest{
		Email: "carol@example.com", Code: wrongCode(code), NewPassword: "new-password",
	})
	s.ErrorIs(err, service.ErrInvalidCode)

	stored, err := s.accounts.GetByEmail(s.ctx, "carol@example.com")
	s.Require().NoError(err)
	s.True(s.hasher.ComparePassword(stored.PasswordHash, "old-password"))
}
