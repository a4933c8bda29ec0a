package flow

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/FounderLoop/interviewbot/internal/messaging"
	"github.com/FounderLoop/interviewbot/internal/store"
	"github.com/FounderLoop/interviewbot/internal/twiliowhatsapp"
)

// stubCompleter returns a canned reply or error and records the calls.
type stubCompleter struct {
	reply string
	err   error
	calls []completerCall
}

type completerCall struct {
	userTurn    string
	instruction string
}

func (s *stubCompleter) GenerateReply(ctx context.Context, userTurn, systemInstruction string) (string, error) {
	s.calls = append(s.calls, completerCall{userTurn: userTurn, instruction: systemInstruction})
	return s.reply, s.err
}

type fixture struct {
	router    *Router
	store     *store.InMemoryStore
	completer *stubCompleter
	sent      *twiliowhatsapp.MockClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	completer := &stubCompleter{reply: "stub reply"}
	mock := twiliowhatsapp.NewMockClient()
	msg := messaging.NewTwilioService(mock)
	composer := NewComposer(rand.NewPCG(1, 2))
	return &fixture{
		router:    NewRouter(st, completer, msg, composer),
		store:     st,
		completer: completer,
		sent:      mock,
	}
}

func (f *fixture) handle(t *testing.T, from, body string) string {
	t.Helper()
	reply, err := f.router.HandleMessage(context.Background(), from, body)
	if err != nil {
		t.Fatalf("HandleMessage(%q, %q): %v", from, body, err)
	}
	return reply
}

const sender = "whatsapp:+15550100"
const senderPhone = "15550100"

func registerSender(t *testing.T, f *fixture) {
	t.Helper()
	reply := f.handle(t, sender, "register, Ana Ruiz, first-year CS students")
	if reply != msgRegistrationSuccess {
		t.Fatalf("registration reply = %q", reply)
	}
}

func TestUnregisteredSenderGetsGuidance(t *testing.T) {
	f := newFixture(t)
	reply := f.handle(t, sender, "hello there")
	if reply != msgNotRegistered {
		t.Errorf("reply = %q, want not-registered guidance", reply)
	}
	// Guidance is also delivered out of band.
	if sent := f.sent.Sent(); len(sent) != 1 || sent[0].Body != msgNotRegistered {
		t.Errorf("expected one outbound guidance message, got %+v", sent)
	}
	if len(f.completer.calls) != 0 {
		t.Error("completion client called for unregistered sender")
	}
}

func TestRegistrationCreatesUser(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)

	u, err := f.store.GetUserByPhone(senderPhone)
	if err != nil || u == nil {
		t.Fatalf("user not created: (%v, %v)", u, err)
	}
	if u.Name != "Ana Ruiz" {
		t.Errorf("name = %q, want %q", u.Name, "Ana Ruiz")
	}
	if u.TargetPersona != "first-year CS students" {
		t.Errorf("persona = %q, want %q", u.TargetPersona, "first-year CS students")
	}
}

func TestRegistrationPreservesDelimitedPersona(t *testing.T) {
	f := newFixture(t)
	reply := f.handle(t, sender, "register, Ana Ruiz, students, who, struggle, with, calculus")
	if reply != msgRegistrationSuccess {
		t.Fatalf("reply = %q", reply)
	}
	u, _ := f.store.GetUserByPhone(senderPhone)
	if u == nil {
		t.Fatal("user not created")
	}
	if u.TargetPersona != "students, who, struggle, with, calculus" {
		t.Errorf("persona truncated: %q", u.TargetPersona)
	}
}

func TestRegistrationMalformed(t *testing.T) {
	f := newFixture(t)
	tests := []string{
		"register",
		"register, Ana Ruiz",
		"register, , first-year CS students",
		"register, Ana Ruiz,   ",
	}
	for _, body := range tests {
		reply := f.handle(t, sender, body)
		if reply != msgRegistrationHelp {
			t.Errorf("body %q: reply = %q, want format help", body, reply)
		}
		if u, _ := f.store.GetUserByPhone(senderPhone); u != nil {
			t.Fatalf("body %q: partial user record created", body)
		}
	}
}

func TestInterviewTurnAppendsPair(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)
	f.completer.reply = "hello"

	reply := f.handle(t, sender, "hi")
	if reply != "hello" {
		t.Fatalf("reply = %q, want %q", reply, "hello")
	}

	u, _ := f.store.GetUserByPhone(senderPhone)
	conv, err := f.store.GetActiveConversation(u.ID)
	if err != nil || conv == nil {
		t.Fatalf("active conversation missing: (%v, %v)", conv, err)
	}
	if len(conv.Interview) != 1 || conv.Interview[0].User != "hi" || conv.Interview[0].Bot != "hello" {
		t.Errorf("interview transcript = %+v", conv.Interview)
	}
	if len(conv.Feedback) != 0 {
		t.Errorf("feedback transcript unexpectedly non-empty: %+v", conv.Feedback)
	}
}

func TestCompletionFailureLeavesNoTranscript(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)
	f.completer.err = errors.New("upstream down")

	reply, err := f.router.HandleMessage(context.Background(), sender, "hi")
	if err == nil {
		t.Error("expected error surfaced for observability")
	}
	if reply != msgCompletionFailure {
		t.Errorf("reply = %q, want apologetic failure", reply)
	}

	u, _ := f.store.GetUserByPhone(senderPhone)
	conv, _ := f.store.GetActiveConversation(u.ID)
	if conv != nil {
		t.Errorf("transcript mutated on completion failure: %+v", conv)
	}
}

func TestCompletionEmptyReplyLeavesNoTranscript(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)
	f.completer.reply = ""

	reply := f.handle(t, sender, "hi")
	if reply != msgCompletionFailure {
		t.Errorf("reply = %q, want apologetic failure", reply)
	}
	u, _ := f.store.GetUserByPhone(senderPhone)
	if conv, _ := f.store.GetActiveConversation(u.ID); conv != nil {
		t.Errorf("transcript mutated on empty completion: %+v", conv)
	}
}

func TestResetArchivesConversation(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)
	f.completer.reply = "hello"
	f.handle(t, sender, "hi")

	u, _ := f.store.GetUserByPhone(senderPhone)
	before, _ := f.store.GetActiveConversation(u.ID)

	reply := f.handle(t, sender, "reset")
	if reply != msgResetConfirmation {
		t.Fatalf("reply = %q", reply)
	}

	if conv, _ := f.store.GetActiveConversation(u.ID); conv != nil {
		t.Error("active conversation survived reset")
	}
	archives, _ := f.store.ListPreviousConversations(u.ID)
	if len(archives) != 1 {
		t.Fatalf("expected exactly one archive, got %d", len(archives))
	}
	if !archives[0].Interview.Equal(before.Interview) {
		t.Errorf("archived interview = %+v, want %+v", archives[0].Interview, before.Interview)
	}
	if !archives[0].Feedback.Equal(before.Feedback) {
		t.Errorf("archived feedback = %+v, want %+v", archives[0].Feedback, before.Feedback)
	}
}

func TestResetWithNoConversationIsNoOp(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)

	// The user has never spoken; the lazily created conversation and the
	// reset must compose into a persisted no-op.
	reply := f.handle(t, sender, "reset")
	if reply != msgResetConfirmation {
		t.Fatalf("reply = %q", reply)
	}
	u, _ := f.store.GetUserByPhone(senderPhone)
	if archives, _ := f.store.ListPreviousConversations(u.ID); len(archives) != 0 {
		t.Errorf("archive created from empty state: %+v", archives)
	}
}

func TestRemoveDeletesUserAndConversation(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)
	f.completer.reply = "hello"
	f.handle(t, sender, "hi")

	reply := f.handle(t, sender, "remove")
	if reply != msgRemoveConfirmation {
		t.Fatalf("reply = %q", reply)
	}
	if u, _ := f.store.GetUserByPhone(senderPhone); u != nil {
		t.Error("user survived remove")
	}
}

func TestRemoveFromUnknownSenderIsNotRegisteredPath(t *testing.T) {
	f := newFixture(t)
	reply := f.handle(t, sender, "remove")
	if reply != msgNotRegistered {
		t.Errorf("reply = %q, want not-registered guidance", reply)
	}
}

func TestRemoveFromUserWhoNeverSpoke(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)

	reply := f.handle(t, sender, "remove")
	if reply != msgRemoveConfirmation {
		t.Fatalf("reply = %q", reply)
	}
	if u, _ := f.store.GetUserByPhone(senderPhone); u != nil {
		t.Error("user survived remove")
	}
}

func TestStartFeedbackAppendsToFeedbackOnly(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)
	f.completer.reply = "hello"
	f.handle(t, sender, "hi")

	f.completer.reply = "here is my feedback"
	reply := f.handle(t, sender, "start feedback")
	if reply != "here is my feedback" {
		t.Fatalf("reply = %q", reply)
	}

	u, _ := f.store.GetUserByPhone(senderPhone)
	conv, _ := f.store.GetActiveConversation(u.ID)
	if len(conv.Feedback) != 1 {
		t.Fatalf("feedback transcript = %+v, want one turn", conv.Feedback)
	}
	if conv.Feedback[0].User != "start feedback" || conv.Feedback[0].Bot != "here is my feedback" {
		t.Errorf("feedback turn = %+v", conv.Feedback[0])
	}
	if len(conv.Interview) != 1 {
		t.Errorf("interview transcript changed: %+v", conv.Interview)
	}

	// The feedback instruction embeds the interview so far.
	last := f.completer.calls[len(f.completer.calls)-1]
	if !strings.Contains(last.instruction, "Founder: hi") || !strings.Contains(last.instruction, "Customer: hello") {
		t.Errorf("feedback instruction missing transcript: %q", last.instruction)
	}
}

func TestStartFeedbackWithEmptyInterviewIsRejected(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)

	reply := f.handle(t, sender, "start feedback")
	if reply != msgFeedbackNoInterview {
		t.Errorf("reply = %q, want guidance", reply)
	}
	if len(f.completer.calls) != 0 {
		t.Error("completion client called with empty interview")
	}
	u, _ := f.store.GetUserByPhone(senderPhone)
	if conv, _ := f.store.GetActiveConversation(u.ID); conv != nil {
		t.Errorf("state mutated: %+v", conv)
	}
}

func TestCommandMatchingIsCaseAndWhitespaceInsensitive(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"  RESET  ", msgResetConfirmation},
		{"Remove", msgRemoveConfirmation},
		{"  Start   Feedback ", msgFeedbackNoInterview},
	}
	for _, tt := range tests {
		f := newFixture(t)
		registerSender(t, f)
		reply := f.handle(t, sender, tt.body)
		if reply != tt.want {
			t.Errorf("body %q: reply = %q, want %q", tt.body, reply, tt.want)
		}
	}
}

func TestAtMostOneActiveConversation(t *testing.T) {
	f := newFixture(t)
	registerSender(t, f)
	f.completer.reply = "reply"

	bodies := []string{"one", "two", "reset", "three", "start feedback", "four"}
	u, _ := f.store.GetUserByPhone(senderPhone)
	for _, body := range bodies {
		f.handle(t, sender, body)
		conv, err := f.store.GetActiveConversation(u.ID)
		if err != nil {
			t.Fatalf("after %q: %v", body, err)
		}
		// Invariant: zero or one active conversation keyed by the user;
		// the in-memory store can only hold one per user, so the check is
		// that no stale record survives a reset.
		if body == "reset" && conv != nil {
			t.Fatalf("active conversation present immediately after reset")
		}
	}
}

func TestInvalidSenderRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.router.HandleMessage(context.Background(), "whatsapp:abc", "hi")
	if err == nil {
		t.Error("expected validation error for digit-free sender")
	}
}
