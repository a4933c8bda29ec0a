package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FounderLoop/interviewbot/internal/messaging"
	"github.com/FounderLoop/interviewbot/internal/models"
	"github.com/FounderLoop/interviewbot/internal/store"
)

// User-facing message texts.
const (
	msgNotRegistered = "You are not registered. To register, please start your message with 'register' followed by your details in this format:\n\n" +
		"'register, your name, your target user or client description.'\n\n" +
		"Example: 'register, John Doe, College students between 1st and 4th semester who struggle learning math.'\n\n" +
		"Please make sure your user description is well defined and correctly delimited (not everyone can be your user)."
	msgRegistrationHelp    = "Please provide all details in the format: register, Name, user description"
	msgRegistrationSuccess = "Registration successful."
	msgRegistrationFailed  = "Registration failed. Please try again."
	msgAlreadyRegistered   = "You are already registered. Send any message to practice, or 'reset' to start over."
	msgRemoveConfirmation  = "Your registration and active conversation have been removed."
	msgResetConfirmation   = "Your conversation has been archived. Send any message to start a fresh interview."
	msgFeedbackNoInterview = "There is no interview to review yet. Practice a few turns first, then send 'start feedback'."
	msgCompletionFailure   = "Sorry, I couldn't come up with a reply just now. Please try again."
	msgGenericFailure      = "Something went wrong on our side. Please try again."
)

// senderChannelPrefix is the channel tag Twilio puts in front of the phone
// number in the webhook's From field.
const senderChannelPrefix = "whatsapp:"

// Router is the message router: it interprets each inbound message against
// the sender's current state, executes exactly one transition, and returns
// the outbound reply text.
type Router struct {
	store     store.Store
	completer Completer
	msg       messaging.Service
	composer  *Composer
	senders   *senderLocks
}

// NewRouter creates a Router with its injected collaborators.
func NewRouter(st store.Store, completer Completer, msg messaging.Service, composer *Composer) *Router {
	return &Router{
		store:     st,
		completer: completer,
		msg:       msg,
		composer:  composer,
		senders:   newSenderLocks(),
	}
}

// deriveMode computes the tagged conversation mode for one invocation.
func deriveMode(user *models.User, conv *models.ActiveConversation) Mode {
	switch {
	case user == nil:
		return ModeUnregistered
	case conv == nil:
		return ModeNoActiveConversation
	case len(conv.Feedback) > 0:
		return ModeInFeedback
	default:
		return ModeInInterview
	}
}

// HandleMessage processes one inbound message and returns the outbound reply
// text. All state mutation within the invocation is atomic: a reset, remove,
// or append either fully completes or leaves prior state untouched. The
// returned error is for observability only; the reply text is always safe to
// deliver.
func (r *Router) HandleMessage(ctx context.Context, from, body string) (string, error) {
	phone := strings.TrimPrefix(from, senderChannelPrefix)
	canonical, err := r.msg.ValidateAndCanonicalizeRecipient(phone)
	if err != nil {
		slog.Warn("Router.HandleMessage: invalid sender", "error", err, "from", from)
		return "", fmt.Errorf("invalid sender %q: %w", from, err)
	}

	// Serialize per sender: two quick messages from the same founder must
	// not interleave on the same active conversation.
	unlock := r.senders.acquire(canonical)
	defer unlock()

	user, err := r.store.GetUserByPhone(canonical)
	if err != nil {
		slog.Error("Router.HandleMessage: user lookup failed", "error", err, "phone", canonical)
		return msgGenericFailure, err
	}

	command := normalizeCommand(body)

	if user == nil {
		if strings.Contains(command, registerKeyword) {
			return r.register(ctx, canonical, body)
		}
		slog.Info("Router.HandleMessage: unregistered sender", "phone", canonical)
		r.notify(ctx, canonical, msgNotRegistered)
		return msgNotRegistered, nil
	}

	conv, err := r.store.GetActiveConversation(user.ID)
	if err != nil {
		slog.Error("Router.HandleMessage: conversation lookup failed", "error", err, "userID", user.ID)
		return msgGenericFailure, err
	}
	mode := deriveMode(user, conv)
	slog.Debug("Router.HandleMessage: dispatching", "phone", canonical, "mode", mode.String(), "command", command)

	// Lazily create the active conversation. It is not persisted here: if
	// this same message is a remove/reset the create and destroy compose
	// into a persisted no-op.
	now := time.Now().UTC()
	if conv == nil {
		conv = &models.ActiveConversation{
			UserID:    user.ID,
			Interview: models.Transcript{},
			Feedback:  models.Transcript{},
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	switch command {
	case cmdRemove:
		return r.remove(ctx, user)
	case cmdReset:
		return r.reset(ctx, user)
	case cmdStartFeedback:
		return r.startFeedback(ctx, user, conv, body, now)
	default:
		return r.interviewTurn(ctx, user, conv, body, now)
	}
}

// remove deletes the user and their active conversation entirely.
func (r *Router) remove(ctx context.Context, user *models.User) (string, error) {
	if err := r.store.DeleteUser(user.ID); err != nil {
		slog.Error("Router.remove: delete failed", "error", err, "userID", user.ID)
		return msgGenericFailure, err
	}
	slog.Info("Router.remove: user removed", "userID", user.ID, "phone", user.PhoneNumber)
	r.notify(ctx, user.PhoneNumber, msgRemoveConfirmation)
	return msgRemoveConfirmation, nil
}

// reset archives the active conversation as a previous conversation and
// deletes the active record, in one transaction.
func (r *Router) reset(ctx context.Context, user *models.User) (string, error) {
	archived, err := r.store.ArchiveActiveConversation(user.ID)
	if err != nil {
		slog.Error("Router.reset: archive failed", "error", err, "userID", user.ID)
		return msgGenericFailure, err
	}
	if archived == nil {
		// Nothing was persisted yet; resetting an empty state is a no-op.
		slog.Debug("Router.reset: no active conversation to archive", "userID", user.ID)
	} else {
		slog.Info("Router.reset: conversation archived", "userID", user.ID, "archiveID", archived.ID,
			"interview_turns", len(archived.Interview), "feedback_turns", len(archived.Feedback))
	}
	r.notify(ctx, user.PhoneNumber, msgResetConfirmation)
	return msgResetConfirmation, nil
}

// startFeedback generates a feedback reply over the full interview
// transcript and appends the exchange to the feedback transcript only.
func (r *Router) startFeedback(ctx context.Context, user *models.User, conv *models.ActiveConversation, body string, now time.Time) (string, error) {
	if len(conv.Interview) == 0 {
		slog.Info("Router.startFeedback: empty interview", "userID", user.ID)
		return msgFeedbackNoInterview, nil
	}

	instruction := r.composer.FeedbackInstruction(*user, conv.Interview)
	reply, err := r.completer.GenerateReply(ctx, body, instruction)
	if err != nil {
		slog.Error("Router.startFeedback: completion failed", "error", err, "userID", user.ID)
		return msgCompletionFailure, err
	}
	if reply == "" {
		slog.Warn("Router.startFeedback: empty completion", "userID", user.ID)
		return msgCompletionFailure, nil
	}

	conv.Feedback = conv.Feedback.Append(body, reply, now)
	conv.UpdatedAt = now
	if err := r.store.SaveActiveConversation(*conv); err != nil {
		slog.Error("Router.startFeedback: persist failed", "error", err, "userID", user.ID)
		return msgGenericFailure, err
	}
	slog.Info("Router.startFeedback: feedback turn recorded", "userID", user.ID, "feedback_turns", len(conv.Feedback))
	return reply, nil
}

// interviewTurn generates an interview-mode reply and appends the exchange
// to the interview transcript.
func (r *Router) interviewTurn(ctx context.Context, user *models.User, conv *models.ActiveConversation, body string, now time.Time) (string, error) {
	instruction := r.composer.InterviewInstruction(*user, conv.Interview, body)
	reply, err := r.completer.GenerateReply(ctx, body, instruction)
	if err != nil {
		slog.Error("Router.interviewTurn: completion failed", "error", err, "userID", user.ID)
		return msgCompletionFailure, err
	}
	if reply == "" {
		slog.Warn("Router.interviewTurn: empty completion", "userID", user.ID)
		return msgCompletionFailure, nil
	}

	conv.Interview = conv.Interview.Append(body, reply, now)
	conv.UpdatedAt = now
	if err := r.store.SaveActiveConversation(*conv); err != nil {
		slog.Error("Router.interviewTurn: persist failed", "error", err, "userID", user.ID)
		return msgGenericFailure, err
	}
	slog.Info("Router.interviewTurn: turn recorded", "userID", user.ID, "interview_turns", len(conv.Interview))
	return reply, nil
}

// notify sends a message best effort. Delivery failures are logged, never
// propagated: the persisted record is the source of truth regardless of
// whether the user received the text.
func (r *Router) notify(ctx context.Context, phone, text string) {
	if err := r.msg.SendMessage(ctx, phone, text); err != nil {
		slog.Error("Router.notify: delivery failed", "error", err, "to", phone)
	}
}
