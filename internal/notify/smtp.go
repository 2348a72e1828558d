package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"
)

// AttachmentName is the filename given to attached frames.
const AttachmentName = "baby_status.jpg"

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// SMTPTransport sends mail through an SMTP server with STARTTLS and PLAIN auth.
type SMTPTransport struct {
	cfg         SMTPConfig
	dialTimeout time.Duration
	sendTimeout time.Duration
}

// NewSMTPTransport returns a transport for cfg.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, dialTimeout: 30 * time.Second, sendTimeout: 60 * time.Second}
}

// sessionDeadline bounds the whole SMTP exchange, clamped to ctx's deadline.
func (t *SMTPTransport) sessionDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(t.sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// Deliver implements Transport. Each call opens and closes its own connection.
func (t *SMTPTransport) Deliver(ctx context.Context, subject, body string, image []byte) error {
	msg, err := buildMessage(t.cfg.From, t.cfg.To, subject, body, image)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	addr := net.JoinHostPort(t.cfg.Server, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if err := conn.SetDeadline(t.sessionDeadline(ctx)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set session deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Server}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Server)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}
	if err := client.Mail(t.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(t.cfg.To); err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message not accepted: %w", err)
	}
	return client.Quit()
}

// buildMessage renders a multipart/mixed message with a plain-text part and
// an optional JPEG attachment.
func buildMessage(from, to, subject, body string, image []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64(text, []byte(body)); err != nil {
		return nil, err
	}

	if len(image) > 0 {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("image/jpeg; name=%q", AttachmentName)},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", AttachmentName)},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, image); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64 writes data base64-encoded in 76-column lines.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:76]); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", encoded)
	return err
}
