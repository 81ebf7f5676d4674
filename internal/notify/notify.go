package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"studentevals-backend/internal/assert"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/config"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/notify")

const report_notifier_send = "notifier.send"

// Notifier emails the operators when the pipeline needs a human, an
// unconfigured notifier does nothing.
type Notifier struct {
	cfg config.Notify
	tel telemetry.API
}

func NewNotifier(cfg config.Notify, tel telemetry.API) Notifier {
	assert.NotNil(tel)
	return Notifier{
		cfg: cfg,
		tel: telemetry.NewScopedAPI("notify", tel),
	}
}

func (n Notifier) Enabled() bool {
	return n.cfg.SmtpHost != "" && n.cfg.From != "" && len(n.cfg.To) > 0
}

// ReauthRequired tells the operators that the upstream session expired and
// could not be refreshed automatically.
func (n Notifier) ReauthRequired(ctx context.Context, job string, failures int) error {
	body := fmt.Sprintf(`The %s job stopped because the evaluation site session expired.

%d requests failed with an expired session. Refresh the cookies with "studentevals reauth" and run the job again.`, job, failures)
	return n.send(ctx, "Reauthentication required", body)
}

func (n Notifier) send(ctx context.Context, subject, body string) error {
	if !n.Enabled() {
		n.tel.ReportDebug("notifications disabled, dropping", subject)
		return nil
	}

	_, span := tracer.Start(ctx, "send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("studentevals <%s>", n.cfg.From)
	mail.To = n.cfg.To
	mail.Subject = subject
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", n.cfg.SmtpHost, n.cfg.SmtpPort)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SmtpHost)
	}

	err := mail.Send(addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		n.tel.ReportBroken(report_notifier_send, err, subject)
		return err
	}
	return nil
}
