// Package email sends approval notices via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	// send delivers a composed message. It dials the configured SMTP server
	// unless replaced.
	send func(msg *gomail.Message) error
}

// NewService creates a new email service
func NewService(config Config) *Service {
	s := &Service{config: config}
	s.send = func(msg *gomail.Message) error {
		dialer := gomail.NewDialer(s.config.Host, s.config.Port, s.config.Username, s.config.Password)
		return dialer.DialAndSend(msg)
	}
	return s
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.Port > 0 && s.config.From != ""
}

// SendHTMLEmail sends an HTML email with a plain text alternative.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	recipients := cleanRecipients(to)
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	msg := gomail.NewMessage()
	if s.config.FromName != "" {
		msg.SetAddressHeader("From", s.config.From, s.config.FromName)
	} else {
		msg.SetHeader("From", s.config.From)
	}
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	if err := s.send(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// ApprovalData is rendered into the approval notice.
type ApprovalData struct {
	Filename     string
	Tone         string
	Caption      string
	ApproverName string
	ApprovedAt   time.Time
	DriveURL     string
}

// SendApprovalNotice tells the recipients a caption was approved.
func (s *Service) SendApprovalNotice(to []string, data ApprovalData) error {
	html, err := renderTemplate(approvalEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render approval template: %w", err)
	}
	subject := fmt.Sprintf("Caption approved: %s", data.Filename)
	text := fmt.Sprintf("%s approved the %s caption for %s:\n\n%s\n", data.ApproverName, data.Tone, data.Filename, data.Caption)
	return s.SendHTMLEmail(to, subject, text, html)
}

// ParseRecipients splits a comma or semicolon separated list.
func ParseRecipients(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	return cleanRecipients(fields)
}

func cleanRecipients(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const approvalEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Caption approved</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2e7d32; padding-bottom: 10px; margin-bottom: 20px; }
        .caption { background: #f5f5f5; padding: 12px; border-radius: 4px; white-space: pre-wrap; }
        .button { display: inline-block; padding: 12px 24px; background: #2e7d32; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Caption approved</h1>
    </div>

    <p>{{.ApproverName}} approved the <strong>{{.Tone}}</strong> caption for <strong>{{.Filename}}</strong>.</p>

    <div class="caption">{{.Caption}}</div>

    {{if .DriveURL}}
    <p>
        <a href="{{.DriveURL}}" class="button">Open file</a>
    </p>
    {{end}}

    <div class="footer">
        <p>Approved {{.ApprovedAt.Format "Jan 2, 2006 15:04 MST"}}.</p>
    </div>
</body>
</html>`
