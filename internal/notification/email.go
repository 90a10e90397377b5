// Package notification delivers reservation confirmations and announcements.
package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"grillbook/internal/config"
	"grillbook/internal/models"
	"grillbook/internal/timeutil"

	"github.com/rs/zerolog"
)

const (
	MsgEmailSent      = "email sent."
	MsgEmailSimulated = "email delivery is not configured; the message was logged instead."
	MsgEmailFailed    = "email could not be sent, but your reservation was created. keep your cancellation code."
)

var emailTemplate = template.Must(template.New("confirmation").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #ea580c; text-align: center;">Grill reservation confirmed</h2>
  <p>Hello {{.Name}},</p>
  <p>Your reservation is confirmed. Details:</p>
  <div style="background-color: #f9f9f9; padding: 15px; border-radius: 5px;">
    <p><strong>Event:</strong> {{.Title}}</p>
    <p><strong>When:</strong> {{.Start}} to {{.End}}</p>
    <p><strong>Apartment:</strong> {{.Apartment}}</p>
    {{- if .Description}}
    <p><strong>Description:</strong> {{.Description}}</p>
    {{- end}}
  </div>
  <div style="background-color: #fff3e0; padding: 15px; border-left: 4px solid #ea580c; margin: 15px 0;">
    <p style="font-weight: bold;">Cancellation code:</p>
    <p style="font-size: 24px; text-align: center; font-family: monospace; letter-spacing: 3px;">{{.Code}}</p>
    <p style="font-size: 12px; color: #666;">Keep this code. You need it to cancel the reservation.</p>
  </div>
  {{- if .Link}}
  <p>You can cancel from the calendar at <a href="{{.Link}}">{{.Link}}</a>.</p>
  {{- end}}
  <p style="font-size: 12px; color: #666; text-align: center;">This is an automated message, please do not reply.</p>
</div>`))

type emailView struct {
	Name        string
	Title       string
	Start       string
	End         string
	Apartment   string
	Description string
	Code        string
	Link        string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends confirmation emails over SMTP. Without SMTP settings it
// only logs the message and reports a simulated success.
type EmailNotifier struct {
	cfg       config.EmailConfig
	publicURL string
	loc       *time.Location
	logger    *zerolog.Logger
	send      sendMailFunc
}

func NewEmailNotifier(cfg config.EmailConfig, publicURL string, loc *time.Location, logger *zerolog.Logger) *EmailNotifier {
	if loc == nil {
		loc = time.Local
	}
	return &EmailNotifier{
		cfg:       cfg,
		publicURL: publicURL,
		loc:       loc,
		logger:    logger,
		send:      smtp.SendMail,
	}
}

func (n *EmailNotifier) SendReservationEmail(ctx context.Context, address string, r *models.Reservation, code string) (models.NotifyResult, error) {
	address = strings.TrimSpace(address)
	if address == "" || r == nil || code == "" {
		return models.NotifyResult{Message: "email, reservation and cancellation code are required."},
			errors.New("incomplete email request")
	}
	if err := ctx.Err(); err != nil {
		return models.NotifyResult{Message: MsgEmailFailed}, err
	}

	subject := "Reservation confirmed: " + r.Title
	body, err := n.render(r, code)
	if err != nil {
		return models.NotifyResult{Message: MsgEmailFailed}, err
	}

	if !n.cfg.Enabled() {
		n.logger.Info().
			Str("to", address).
			Str("subject", subject).
			Str("reservation_id", r.ID).
			Msg("Simulating confirmation email")
		return models.NotifyResult{Success: true, Simulated: true, Message: MsgEmailSimulated}, nil
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := n.cfg.Host + ":" + strconv.Itoa(n.cfg.Port)
	msg := buildMessage(n.cfg.From, address, subject, body)

	if err := n.send(addr, auth, n.cfg.From, []string{address}, msg); err != nil {
		n.logger.Warn().Err(err).Str("to", address).Msg("Failed to send confirmation email")
		return models.NotifyResult{Message: MsgEmailFailed}, fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().Str("to", address).Str("reservation_id", r.ID).Msg("Confirmation email sent")
	return models.NotifyResult{Success: true, Message: MsgEmailSent}, nil
}

func (n *EmailNotifier) render(r *models.Reservation, code string) (string, error) {
	view := emailView{
		Name:        r.Name,
		Title:       r.Title,
		Start:       timeutil.FormatDateTime(r.StartTime.In(n.loc)),
		End:         timeutil.FormatDateTime(r.EndTime.In(n.loc)),
		Apartment:   r.ApartmentNumber,
		Description: r.Description,
		Code:        code,
		Link:        n.publicURL,
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}
