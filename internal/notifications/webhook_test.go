package notifications

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestNotifyNoWebhook(t *testing.T) {
	s := NewSender("", "TestBot", zerolog.Nop())
	if s.Enabled() {
		t.Fatal("should not be enabled with empty URL")
	}
	// Logs only, no delivery attempt.
	s.Notify("test", "hello")
}

func TestDeliverSlackFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TestBot", zerolog.Nop())
	if !s.Enabled() {
		t.Fatal("should be enabled")
	}
	s.deliver("[TestBot] trade settled — details")

	if received["username"] != "TestBot" {
		t.Fatalf("username: got %s", received["username"])
	}
	if received["text"] == "" {
		t.Fatal("text should not be empty")
	}
}

func TestDeliverDiscordFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// URL containing "discord" switches the payload shape.
	s := NewSender(srv.URL+"/discord/webhook", "FleetBot", zerolog.Nop())
	s.deliver("[FleetBot] swap submitted")

	if received["content"] == "" {
		t.Fatal("content should not be empty for Discord")
	}
	if received["username"] != "FleetBot" {
		t.Fatalf("username: got %s", received["username"])
	}
	if _, hasText := received["text"]; hasText {
		t.Fatal("Discord payload should not have 'text' field")
	}
}

func TestDeliverWebhookError(t *testing.T) {
	s := NewSender("http://localhost:1/bogus", "TestBot", zerolog.Nop())
	// Must not panic; failure is logged and dropped.
	s.deliver("this will fail gracefully")
}

func TestDefaultBotName(t *testing.T) {
	s := NewSender("", "", zerolog.Nop())
	if s.botName != "EthmaticFleet" {
		t.Fatalf("expected default bot name, got %s", s.botName)
	}
}
