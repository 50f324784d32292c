// Package notify delivers best-effort notifications to people outside the
// request: the client contact, the assigned KAM, the credit desk.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fixr105/Seven-Render-sub002/internal/logging"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
)

type Kind string

const (
	KindQueryRaised   Kind = "query_raised"
	KindQueryReplied  Kind = "query_replied"
	KindQueryResolved Kind = "query_resolved"
)

// Notification is one message to one recipient.
type Notification struct {
	To            string
	RecipientRole rbac.Role
	Kind          Kind
	Payload       map[string]string
}

// Notifier sends a notification. Callers treat every error as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// New returns the SMTP notifier when SMTP is configured and the log notifier
// otherwise.
func New(cfg Config, logger *logrus.Logger) Notifier {
	email := NewEmailNotifier(cfg)
	if email.IsConfigured() {
		return email
	}
	logging.OrDiscard(logger).WithField("module", "notify").Info("SMTP not configured, notifications are logged only")
	return NewLogNotifier(logger)
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.OrDiscard(logger)}
}

func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.WithFields(logrus.Fields{
		"module":        "notify",
		"to":            notification.To,
		"recipientRole": notification.RecipientRole,
		"kind":          notification.Kind,
		"payload":       notification.Payload,
	}).Info("notification")
	return nil
}
