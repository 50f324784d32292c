package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
)

func TestEmailNotifierIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "ops@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "ops@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewEmailNotifier(tt.config).IsConfigured(); got != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEmailNotifierSends(t *testing.T) {
	n := NewEmailNotifier(Config{Host: "smtp.example.com", Port: "587", From: "ops@example.com", FromName: "Back Office"})
	var gotAddr string
	var gotTo []string
	var gotMsg string
	n.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := n.Notify(context.Background(), Notification{
		To:            "kam@example.com",
		RecipientRole: "kam",
		Kind:          KindQueryRaised,
		Payload:       map[string]string{"fileId": "F1", "actor": "client@example.com", "message": "<b>PAN missing?</b>"},
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("unexpected server %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "kam@example.com" {
		t.Errorf("unexpected recipients %v", gotTo)
	}
	for _, want := range []string{"Subject: New query on loan file F1", "From: Back Office <ops@example.com>", "&lt;b&gt;PAN missing?&lt;/b&gt;"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message should contain %q", want)
		}
	}
}

func TestEmailNotifierRejectsMissingRecipient(t *testing.T) {
	n := NewEmailNotifier(Config{Host: "smtp.example.com", Port: "587", From: "ops@example.com"})
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	if err := n.Notify(context.Background(), Notification{Kind: KindQueryRaised}); err == nil {
		t.Error("expected error for empty recipient")
	}
}

func TestNewFallsBackToLogNotifier(t *testing.T) {
	if _, ok := New(Config{}, nil).(*LogNotifier); !ok {
		t.Error("expected log notifier without SMTP")
	}
	if _, ok := New(Config{Host: "h", Port: "25", From: "f@example.com"}, nil).(*EmailNotifier); !ok {
		t.Error("expected email notifier with SMTP")
	}
	if err := NewLogNotifier(nil).Notify(context.Background(), Notification{Kind: KindQueryResolved}); err != nil {
		t.Errorf("log notifier returned %v", err)
	}
}
