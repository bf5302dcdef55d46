package review

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/models"
)

// SMTPSink emails flagged submissions to the configured moderators.
type SMTPSink struct {
	cfg config.SMTPConfig
}

// NewSMTPSink returns nil when SMTP is not configured.
func NewSMTPSink(cfg config.SMTPConfig) *SMTPSink {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port == 0 || strings.TrimSpace(cfg.From) == "" || len(cfg.To) == 0 {
		return nil
	}
	return &SMTPSink{cfg: cfg}
}

func (s *SMTPSink) NotifyFlagged(ctx context.Context, sub models.Submission) error {
	if s == nil {
		return nil
	}
	msg := buildEmailMessage(s.cfg.From, s.cfg.To, payloadFor(sub))
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	client, err := s.newClient(ctx, addr)
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	defer client.Close()

	if err := client.Mail(s.cfg.From); err != nil {
		client.Quit()
		return err
	}
	for _, rcpt := range s.cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			client.Quit()
			return err
		}
	}
	wc, err := client.Data()
	if err != nil {
		client.Quit()
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		client.Quit()
		return err
	}
	if err := wc.Close(); err != nil {
		client.Quit()
		return err
	}
	return client.Quit()
}

func (s *SMTPSink) newClient(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if s.cfg.UseTLS {
		tlsCfg := &tls.Config{ServerName: s.cfg.Host, InsecureSkipVerify: s.cfg.SkipTLSVerify}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				client.Close()
				return nil, err
			}
		}
	}

	if strings.TrimSpace(s.cfg.Username) != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

func buildEmailMessage(from string, to []string, payload Payload) []byte {
	subject := fmt.Sprintf("[viberank] Submission by %s flagged for review", payload.Username)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ","))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(formatEmailBody(payload))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func formatEmailBody(payload Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Submission: %s\n", payload.SubmissionID)
	fmt.Fprintf(&b, "User: %s (%s)\n", payload.Username, payload.Source)
	fmt.Fprintf(&b, "Cost: $%.2f\n", payload.TotalCost)
	fmt.Fprintf(&b, "Tokens: %d\n", payload.TotalTokens)
	fmt.Fprintf(&b, "Dates: %s to %s\n", payload.DateStart, payload.DateEnd)
	for _, reason := range payload.Reasons {
		fmt.Fprintf(&b, "Reason: %s\n", reason)
	}
	fmt.Fprintf(&b, "Submitted: %s\n", payload.SubmittedAt.Format(time.RFC3339))
	return b.String()
}
