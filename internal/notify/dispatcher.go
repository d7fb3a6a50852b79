package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"otc-service/internal/config"
	"otc-service/internal/models"
	"otc-service/internal/util"
)

// Dispatcher delivers a plaintext code to its recipient. It is the only place the code
// leaves the process.
type Dispatcher interface {
	SendCode(ctx context.Context, to, code string, kind models.CredentialKind) error
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[models.CredentialKind]emailTemplate{
	models.KindSignup: {
		subject: "Verify your InternConnect email",
		body: template.Must(template.New("signup").Parse(`
		<h2>Welcome to InternConnect!</h2>
		<p>Use the code below to verify your email address and finish creating your account.</p>
		<p style="font-size:24px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
		<p>The code expires in {{.Minutes}} minutes. If you did not sign up, you can ignore this email.</p>
	`)),
	},
	models.KindPasswordReset: {
		subject: "Your InternConnect password reset code",
		body: template.Must(template.New("password_reset").Parse(`
		<h3>Password reset requested</h3>
		<p>We received a request to reset the password for your account.</p>
		<p style="font-size:24px;letter-spacing:4px"><strong>{{.Code}}</strong></p>
		<p>The code expires in {{.Minutes}} minutes. If you did not request this change, you can ignore this email.</p>
	`)),
	},
}

type SMTPDispatcher struct {
	dialer *gomail.Dialer
	from   string
	ttl    time.Duration
}

func NewSMTPDispatcher(cfg *config.Config) *SMTPDispatcher {
	smtp := cfg.SMTP
	return &SMTPDispatcher{
		dialer: gomail.NewDialer(smtp.Host, smtp.Port, smtp.Username, smtp.Password),
		from:   smtp.From,
		ttl:    cfg.OTP.TTL,
	}
}

func (d *SMTPDispatcher) SendCode(ctx context.Context, to, code string, kind models.CredentialKind) error {
	m, err := d.buildMessage(to, code, kind)
	if err != nil {
		return err
	}

	// gomail has no context support; give up waiting when the request is done.
	done := make(chan error, 1)
	go func() {
		done <- d.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send %s email: %w", kind, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("failed to send %s email: %w", kind, ctx.Err())
	}

	util.Info("Code email sent", util.String("kind", string(kind)))
	return nil
}

func (d *SMTPDispatcher) render(code string, kind models.CredentialKind) (string, string, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("no email template for kind %q", kind)
	}

	var body bytes.Buffer
	err := tmpl.body.Execute(&body, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(d.ttl.Minutes())})
	if err != nil {
		return "", "", fmt.Errorf("failed to render %s email: %w", kind, err)
	}
	return tmpl.subject, body.String(), nil
}

func (d *SMTPDispatcher) buildMessage(to, code string, kind models.CredentialKind) (*gomail.Message, error) {
	subject, body, err := d.render(code, kind)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return m, nil
}

// LogDispatcher only logs delivery metadata. The code itself is logged at debug level so a
// developer can complete flows locally.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (LogDispatcher) SendCode(ctx context.Context, to, code string, kind models.CredentialKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	util.Info("Code dispatch skipped, SMTP disabled", util.String("kind", string(kind)))
	util.Debug("Development code", util.String("to", to), util.String("code", code))
	return nil
}
