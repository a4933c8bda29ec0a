package api

import (
	"log/slog"
	"net/http"

	"github.com/FounderLoop/interviewbot/internal/models"
	"github.com/go-chi/chi/v5"
)

// healthHandler returns the fixed liveness payload.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"msg": "up & running"})
}

// messageHandler is the Twilio inbound webhook. It accepts the form-encoded
// Body and From fields and responds with the outbound reply text.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.messageHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Server.messageHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	reply, err := s.flow.HandleMessage(r.Context(), from, body)
	if err != nil {
		// The router already produced safe user-facing text; the error is
		// recorded for observability only.
		slog.Error("Server.messageHandler: transition completed with error", "error", err, "from", from)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(reply)); err != nil {
		slog.Error("Server.messageHandler: failed to write reply", "error", err)
	}
}

// usersHandler lists registered founders.
func (s *Server) usersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers()
	if err != nil {
		slog.Error("Server.usersHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list users"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(users))
}

// conversationsHandler lists the archived conversations of one founder.
func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	user, err := s.store.GetUserByPhone(phone)
	if err != nil {
		slog.Error("Server.conversationsHandler: lookup failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up user"))
		return
	}
	if user == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return
	}

	conversations, err := s.store.ListPreviousConversations(user.ID)
	if err != nil {
		slog.Error("Server.conversationsHandler: list failed", "error", err, "userID", user.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conversations))
}
