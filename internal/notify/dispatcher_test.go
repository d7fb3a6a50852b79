package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-service/internal/config"
	"otc-service/internal/models"
)

func testDispatcher() *SMTPDispatcher {
	return NewSMTPDispatcher(&config.Config{
		SMTP: config.SMTPConfig{Host: "127.0.0.1", Port: 1, From: "InternConnect <no-reply@internconnect.local>"},
		OTP:  config.OTPConfig{TTL: 10 * time.Minute},
	})
}

func TestBuildMessage(t *testing.T) {
	d := testDispatcher()

	for kind, subject := range map[models.CredentialKind]string{
		models.KindSignup:        "Verify your InternConnect email",
		models.KindPasswordReset: "Your InternConnect password reset code",
	} {
		m, err := d.buildMessage("bob@example.com", "042917", kind)
		require.NoError(t, err)
		assert.Equal(t, []string{subject}, m.GetHeader("Subject"))
		assert.Equal(t, []string{"bob@example.com"}, m.GetHeader("To"))

		_, body, err := d.render("042917", kind)
		require.NoError(t, err)
		assert.Contains(t, body, "<strong>042917</strong>")
		assert.Contains(t, body, "10 minutes")
	}

	_, err := d.buildMessage("bob@example.com", "042917", models.CredentialKind("login"))
	assert.Error(t, err)
}

func TestSMTPDispatcherReportsFailure(t *testing.T) {
	err := testDispatcher().SendCode(context.Background(), "bob@example.com", "042917", models.KindSignup)
	assert.Error(t, err)
}

func TestSMTPDispatcherHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := testDispatcher().SendCode(ctx, "bob@example.com", "042917", models.KindSignup)
	assert.Error(t, err)
}

func TestLogDispatcher(t *testing.T) {
	d := NewLogDispatcher()
	assert.NoError(t, d.SendCode(context.Background(), "bob@example.com", "042917", models.KindSignup))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.SendCode(ctx, "bob@example.com", "042917", models.KindSignup), context.Canceled)
}
