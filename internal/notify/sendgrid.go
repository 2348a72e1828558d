package notify

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const frameContentID = "baby_status"

// SendGridConfig holds SendGrid settings.
type SendGridConfig struct {
	APIKey   string
	FromName string
	From     string
	To       string
	// Host overrides the API host, e.g. for a local test server.
	Host string
}

// SendGridTransport sends mail through the SendGrid v3 mail API.
type SendGridTransport struct {
	cfg    SendGridConfig
	client *sendgrid.Client
}

// NewSendGridTransport returns a transport for cfg.
func NewSendGridTransport(cfg SendGridConfig) *SendGridTransport {
	req := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", cfg.Host)
	req.Method = "POST"
	return &SendGridTransport{cfg: cfg, client: &sendgrid.Client{Request: req}}
}

// Deliver implements Transport. Non-2xx responses are errors.
func (t *SendGridTransport) Deliver(ctx context.Context, subject, body string, image []byte) error {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(t.cfg.FromName, t.cfg.From))
	message.Subject = subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(t.cfg.To, t.cfg.To))
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/plain", body))

	if len(image) > 0 {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(image))
		a.SetType("image/jpeg")
		a.SetFilename(AttachmentName)
		a.SetDisposition("inline")
		a.SetContentID(frameContentID)
		message.AddAttachment(a)
	}

	resp, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	log.Debug().Int("status", resp.StatusCode).Str("to", t.cfg.To).Msg("SendGrid accepted message")
	return nil
}
