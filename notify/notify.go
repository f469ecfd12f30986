/*
Package notify delivers activity notifications to the payments office.

IMPLEMENTATIONS:
  LogNotifier    writes a structured log line per notification
  EmailNotifier  sends an HTML mail over SMTP
  Multi          fans out to several notifiers, returning the joined errors

SUBJECTS:
  created  "Aktivitet oprettet"
  updated  "Aktivitet opdateret"
  expired  "Aktivitet udgået"

SEE ALSO:
  - core/notify.go: the Notifier contract and when it is called
*/
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"

	"github.com/warp/appropriation-engine/core"
)

var subjects = map[core.NotificationKind]string{
	core.NotifyCreated: "Aktivitet oprettet",
	core.NotifyUpdated: "Aktivitet opdateret",
	core.NotifyExpired: "Aktivitet udgået",
}

// Subject returns the mail subject for kind.
func Subject(kind core.NotificationKind) string {
	if s, ok := subjects[kind]; ok {
		return s
	}
	return "Aktivitet " + string(kind)
}

// =============================================================================
// LOG NOTIFIER
// =============================================================================

type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, kind core.NotificationKind, a core.Activity) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "activity notification",
		"kind", string(kind),
		"activity_id", string(a.ID),
		"appropriation_id", string(a.AppropriationID),
		"status", string(a.Status),
		"start_date", a.StartDate.String(),
		"end_date", core.FormatOptionalDate(a.EndDate),
	)
	return nil
}

// =============================================================================
// EMAIL NOTIFIER
// =============================================================================

var body = template.Must(template.New("activity").Parse(`<html><body>
<h1>{{.Subject}}</h1>
<table>
<tr><th>Aktivitet</th><td>{{.Activity.ID}}</td></tr>
<tr><th>Bevilling</th><td>{{.Activity.AppropriationID}}</td></tr>
<tr><th>Type</th><td>{{.Activity.Type}}</td></tr>
<tr><th>Status</th><td>{{.Activity.Status}}</td></tr>
<tr><th>Startdato</th><td>{{.Activity.StartDate}}</td></tr>
<tr><th>Slutdato</th><td>{{.EndDate}}</td></tr>
{{if .Activity.Note}}<tr><th>Bemærkning</th><td>{{.Activity.Note}}</td></tr>{{end}}
</table>
</body></html>
`))

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailNotifier struct {
	Addr string // host:port
	From string
	To   []string
	Auth smtp.Auth

	// Send defaults to smtp.SendMail.
	Send SendFunc
}

func (n *EmailNotifier) Notify(_ context.Context, kind core.NotificationKind, a core.Activity) error {
	msg, err := Message(n.From, n.To, kind, a)
	if err != nil {
		return err
	}
	send := n.Send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(n.Addr, n.Auth, n.From, n.To, msg); err != nil {
		return fmt.Errorf("send %s mail for activity %s: %w", kind, a.ID, err)
	}
	return nil
}

// Message renders the RFC 822 mail for a notification.
func Message(from string, to []string, kind core.NotificationKind, a core.Activity) ([]byte, error) {
	subject := Subject(kind)
	var html bytes.Buffer
	err := body.Execute(&html, struct {
		Subject  string
		Activity core.Activity
		EndDate  string
	}{subject, a, core.FormatOptionalDate(a.EndDate)})
	if err != nil {
		return nil, fmt.Errorf("render %s mail: %w", kind, err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(html.Bytes())
	return msg.Bytes(), nil
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Multi notifies every notifier in order and joins their errors.
type Multi []core.Notifier

func (m Multi) Notify(ctx context.Context, kind core.NotificationKind, a core.Activity) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, kind, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
