package external

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	"placement/internal/config"
)

func TestNewMailTransport(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{config.MailProviderSMTP, "smtp", false},
		{config.MailProviderSendGrid, "sendgrid", false},
		{config.MailProviderSES, "ses", false},
		{config.MailProviderStub, "stub", false},
		{"carrier-pigeon", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.MailConfig{Provider: tt.provider, SMTPHost: "localhost", SMTPPort: 2525}
			tr, err := NewMailTransport(cfg, aws.Config{Region: "us-east-1"}, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMailTransport() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tr.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.wantName)
			}
		})
	}
}

func TestStubTransport_RecordsMessages(t *testing.T) {
	s := NewStubTransport(nil)

	id, err := s.Send(context.Background(), testMailMessage())
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(id) <= len("stub-") || id[:5] != "stub-" {
		t.Errorf("id = %q", id)
	}
	if err := s.Verify(context.Background()); err != nil {
		t.Errorf("Verify() error: %v", err)
	}

	sent := s.Sent()
	if len(sent) != 1 || sent[0].To != "dana@example.com" {
		t.Errorf("Sent() = %+v", sent)
	}
}
