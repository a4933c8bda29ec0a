package api

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/FounderLoop/interviewbot/internal/flow"
	"github.com/FounderLoop/interviewbot/internal/messaging"
	"github.com/FounderLoop/interviewbot/internal/models"
	"github.com/FounderLoop/interviewbot/internal/store"
	"github.com/FounderLoop/interviewbot/internal/twiliowhatsapp"
)

type stubCompleter struct{ reply string }

func (s stubCompleter) GenerateReply(ctx context.Context, userTurn, systemInstruction string) (string, error) {
	return s.reply, nil
}

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	msg := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	composer := flow.NewComposer(rand.NewPCG(1, 2))
	router := flow.NewRouter(st, stubCompleter{reply: "stub reply"}, msg, composer)
	return NewServer(router, st), st
}

func postMessage(t *testing.T, s *Server, from, body string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	form.Set("From", from)
	form.Set("Body", body)
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload["msg"] != "up & running" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestMessageWebhookRegistersAndReplies(t *testing.T) {
	s, st := newTestServer(t)

	w := postMessage(t, s, "whatsapp:+15550100", "register, Ana Ruiz, first-year CS students")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != "Registration successful." {
		t.Errorf("body = %q", got)
	}

	u, err := st.GetUserByPhone("15550100")
	if err != nil || u == nil {
		t.Fatalf("user not created: (%v, %v)", u, err)
	}

	w = postMessage(t, s, "whatsapp:+15550100", "hi")
	if got := w.Body.String(); got != "stub reply" {
		t.Errorf("interview reply = %q", got)
	}
}

func TestMessageWebhookMissingFields(t *testing.T) {
	s, _ := newTestServer(t)
	w := postMessage(t, s, "", "hi")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUsersEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	postMessage(t, s, "whatsapp:+15550100", "register, Ana Ruiz, first-year CS students")

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Status models.APIStatus `json:"status"`
		Result []models.User    `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != models.APIStatusOK || len(resp.Result) != 1 || resp.Result[0].Name != "Ana Ruiz" {
		t.Errorf("response = %+v", resp)
	}
}

func TestConversationsEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	postMessage(t, s, "whatsapp:+15550100", "register, Ana Ruiz, first-year CS students")
	postMessage(t, s, "whatsapp:+15550100", "hi")
	postMessage(t, s, "whatsapp:+15550100", "reset")

	req := httptest.NewRequest(http.MethodGet, "/users/15550100/conversations", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Status models.APIStatus              `json:"status"`
		Result []models.PreviousConversation `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Result) != 1 {
		t.Fatalf("expected one archived conversation, got %+v", resp.Result)
	}
	if len(resp.Result[0].Interview) != 1 || resp.Result[0].Interview[0].User != "hi" {
		t.Errorf("archived interview = %+v", resp.Result[0].Interview)
	}

	u, _ := st.GetUserByPhone("15550100")
	if conv, _ := st.GetActiveConversation(u.ID); conv != nil {
		t.Error("active conversation survived reset")
	}
}

func TestConversationsEndpointUnknownUser(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/users/19990000/conversations", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
