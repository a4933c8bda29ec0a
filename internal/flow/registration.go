package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/FounderLoop/interviewbot/internal/models"
	"github.com/FounderLoop/interviewbot/internal/store"
	"github.com/google/uuid"
)

// registrationFieldCount is the number of logical fields in a registration
// command: keyword, name, persona description.
const registrationFieldCount = 3

// registrationDelimiter separates the registration fields. The persona
// description may itself contain the delimiter; it is kept whole.
const registrationDelimiter = ","

// register parses a registration command and creates the user record
// atomically. Malformed input returns format help and creates nothing.
func (r *Router) register(ctx context.Context, phone, body string) (string, error) {
	// SplitN keeps everything after the second delimiter as one persona
	// field, so "register, Ana, students, who, struggle" preserves
	// "students, who, struggle" instead of truncating at the first comma.
	parts := strings.SplitN(body, registrationDelimiter, registrationFieldCount)
	if len(parts) != registrationFieldCount {
		slog.Info("Router.register: malformed registration", "phone", phone, "fields", len(parts))
		return msgRegistrationHelp, nil
	}

	name := strings.TrimSpace(parts[1])
	persona := strings.TrimSpace(parts[2])
	if name == "" || persona == "" {
		slog.Info("Router.register: empty registration field", "phone", phone)
		return msgRegistrationHelp, nil
	}

	user := models.User{
		ID:            uuid.NewString(),
		PhoneNumber:   phone,
		Name:          name,
		TargetPersona: persona,
		CreatedAt:     time.Now().UTC(),
	}
	if err := user.Validate(); err != nil {
		slog.Info("Router.register: invalid registration", "error", err, "phone", phone)
		return msgRegistrationHelp, nil
	}

	if err := r.store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrPhoneNumberTaken) {
			// Lost a race with a concurrent registration from the same phone.
			slog.Warn("Router.register: phone already registered", "phone", phone)
			return msgAlreadyRegistered, nil
		}
		slog.Error("Router.register: persistence failed", "error", err, "phone", phone)
		return msgRegistrationFailed, err
	}

	slog.Info("Router.register: user registered", "userID", user.ID, "phone", phone, "name", name)
	r.notify(ctx, phone, msgRegistrationSuccess)
	return msgRegistrationSuccess, nil
}
