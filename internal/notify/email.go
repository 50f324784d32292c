package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends notifications as HTML email over SMTP.
type EmailNotifier struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewEmailNotifier(config Config) *EmailNotifier {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &EmailNotifier{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (n *EmailNotifier) IsConfigured() bool {
	return n.config.Host != "" && n.config.Port != "" && n.config.From != ""
}

func (n *EmailNotifier) Notify(ctx context.Context, notification Notification) error {
	if !n.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if strings.TrimSpace(notification.To) == "" {
		return fmt.Errorf("notification %s has no recipient", notification.Kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, html, err := render(notification)
	if err != nil {
		return err
	}
	return n.sendHTML([]string{notification.To}, subject, html)
}

func (n *EmailNotifier) sendHTML(to []string, subject, htmlBody string) error {
	from := n.config.From
	if n.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.config.FromName, n.config.From)
	}

	boundary := "boundary-backoffice"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return n.send(n.server, n.auth, n.config.From, to, msg.Bytes())
}

type queryEmailData struct {
	Heading string
	FileID  string
	Actor   string
	Message string
}

var subjects = map[Kind]string{
	KindQueryRaised:   "New query on loan file %s",
	KindQueryReplied:  "Reply on loan file %s",
	KindQueryResolved: "Query resolved on loan file %s",
}

var headings = map[Kind]string{
	KindQueryRaised:   "A new query needs your attention",
	KindQueryReplied:  "A query has a new reply",
	KindQueryResolved: "A query has been resolved",
}

var queryEmailTemplate = template.Must(template.New("query").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Heading}}</title>
</head>
<body>
    <h2>{{.Heading}}</h2>
    <p>Loan file: <strong>{{.FileID}}</strong></p>
    <p>From: {{.Actor}}</p>
    <blockquote>{{.Message}}</blockquote>
</body>
</html>`))

func render(notification Notification) (string, string, error) {
	subjectFormat, ok := subjects[notification.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", notification.Kind)
	}
	data := queryEmailData{
		Heading: headings[notification.Kind],
		FileID:  notification.Payload["fileId"],
		Actor:   notification.Payload["actor"],
		Message: notification.Payload["message"],
	}
	var buf bytes.Buffer
	if err := queryEmailTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s template: %w", notification.Kind, err)
	}
	return fmt.Sprintf(subjectFormat, data.FileID), buf.String(), nil
}
