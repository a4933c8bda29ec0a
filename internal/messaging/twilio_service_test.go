package messaging

import (
	"context"
	"testing"

	"github.com/FounderLoop/interviewbot/internal/twiliowhatsapp"
)

func TestValidateAndCanonicalizeRecipient(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	tests := []struct {
		name      string
		recipient string
		want      string
		wantErr   bool
	}{
		{"already canonical", "15550100", "15550100", false},
		{"plus prefix", "+15550100", "15550100", false},
		{"whatsapp punctuation", "+1 (555) 010-0", "15550100", false},
		{"empty", "", "", true},
		{"no digits", "whatsapp:+", "", true},
		{"too short", "+100", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ValidateAndCanonicalizeRecipient(tt.recipient)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("canonical = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSendMessageCanonicalizesBeforeSending(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	s := NewTwilioService(mock)

	if err := s.SendMessage(context.Background(), "+1 (555) 010-0", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one sent message, got %d", len(sent))
	}
	if sent[0].To != "15550100" || sent[0].Body != "hello" {
		t.Errorf("sent = %+v", sent[0])
	}
}

func TestSendMessageRejectsInvalidRecipient(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	s := NewTwilioService(mock)

	if err := s.SendMessage(context.Background(), "+100", "hello"); err == nil {
		t.Fatal("expected validation error")
	}
	if len(mock.Sent()) != 0 {
		t.Error("message was sent despite invalid recipient")
	}
}
