package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSendGridSender_Send(t *testing.T) {
	var got sendGridMail
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		authHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender(SendGridConfig{BaseURL: srv.URL, APIKey: "SG.test", FromEmail: "health@celloxen.com", FromName: "Celloxen"}, zerolog.Nop())
	err := s.SendEmail(context.Background(), &Notification{
		ID:          "n1",
		Recipient:   "p@example.com",
		Subject:     "Report",
		Body:        "Body",
		Attachments: []Attachment{{Filename: "r.xlsx", ContentType: "application/octet-stream", Content: []byte("abc")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authHeader != "Bearer SG.test" {
		t.Errorf("unexpected auth header %q", authHeader)
	}
	if got.From.Email != "health@celloxen.com" || got.Personalizations[0].To[0].Email != "p@example.com" {
		t.Errorf("unexpected payload %+v", got)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Content != "YWJj" || got.Attachments[0].Disposition != "attachment" {
		t.Errorf("expected base64 attachment, got %+v", got.Attachments)
	}
}

func TestSendGridSender_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from address","field":"from"}]}`))
	}))
	defer srv.Close()

	s := NewSendGridSender(SendGridConfig{BaseURL: srv.URL, APIKey: "k"}, zerolog.Nop())
	err := s.SendEmail(context.Background(), &Notification{Recipient: "p@example.com"})
	if err == nil || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("expected sendgrid error, got %v", err)
	}
}
