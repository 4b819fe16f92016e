package publisher

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/ryosukesatoh/arxiv-digest/internal/report"
)

// DefaultSMTPTimeout bounds a whole SMTP exchange when the caller's context
// has no deadline of its own.
const DefaultSMTPTimeout = 60 * time.Second

// PasswordFunc supplies the account password when none is stored.
type PasswordFunc func() (string, error)

type sendFunc func(ctx context.Context, addr, host, account, password string, msg []byte) error

// EmailPublisher mails the report to the account it is sent from, over
// implicit TLS (SMTPS).
type EmailPublisher struct {
	host     string
	port     int
	account  string
	password string
	prompt   PasswordFunc
	timeout  time.Duration
	send     sendFunc
}

// NewEmailPublisher builds a publisher for account. When password is empty
// prompt is called at publish time.
func NewEmailPublisher(host string, port int, account, password string, prompt PasswordFunc) *EmailPublisher {
	return &EmailPublisher{
		host:     host,
		port:     port,
		account:  account,
		password: password,
		prompt:   prompt,
		timeout:  DefaultSMTPTimeout,
		send:     sendSMTPS,
	}
}

func (p *EmailPublisher) Publish(ctx context.Context, rep *report.Report) error {
	password := p.password
	if password == "" {
		if p.prompt == nil {
			return fmt.Errorf("email: no password configured for %s", p.account)
		}
		var err error
		if password, err = p.prompt(); err != nil {
			return fmt.Errorf("email: failed to read password: %w", err)
		}
	}

	msg, err := buildMessage(p.account, rep)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	if err := p.send(ctx, addr, p.host, p.account, password, msg); err != nil {
		return fmt.Errorf("email: failed to send: %w", err)
	}
	return nil
}

// buildMessage renders a multipart/alternative message with the plain-text
// part first so clients prefer the HTML part.
func buildMessage(account string, rep *report.Report) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=\"UTF-8\"", rep.Text},
		{"text/html; charset=\"UTF-8\"", rep.HTML},
	}
	for _, part := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("email: failed to create part: %w", err)
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("email: failed to encode part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("email: failed to encode part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("email: failed to finish message: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", account)
	fmt.Fprintf(&msg, "To: %s\r\n", account)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", rep.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// sendSMTPS dials addr with TLS from the first byte, authenticates and
// submits msg from account to account. The context deadline, or
// DefaultSMTPTimeout without one, covers the dial and every later command.
func sendSMTPS(ctx context.Context, addr, host, account, password string, msg []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultSMTPTimeout)
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Deadline: deadline},
		Config:    &tls.Config{ServerName: host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err := c.Auth(smtp.PlainAuth("", account, password, host)); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(account); err != nil {
		return err
	}
	if err := c.Rcpt(account); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
