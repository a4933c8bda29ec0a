// Package flow implements the conversation lifecycle for InterviewBot: the
// message router state machine, registration, and prompt composition.
//
// Each inbound message performs exactly one transition against the user's
// persisted state. The router owns no storage of its own; all collaborators
// are injected.
package flow

import (
	"context"
	"strings"
	"sync"
)

// Mode is the derived conversation state for one inbound message. It is
// computed once per invocation from the presence of the user and active
// conversation records, never stored.
type Mode int

const (
	// ModeUnregistered means no user record exists for the sender.
	ModeUnregistered Mode = iota
	// ModeNoActiveConversation means the user exists but has no active
	// conversation yet.
	ModeNoActiveConversation
	// ModeInInterview means an active conversation exists with no feedback
	// exchanges yet.
	ModeInInterview
	// ModeInFeedback means the active conversation already holds feedback
	// exchanges.
	ModeInFeedback
)

// String returns the mode name for logging.
func (m Mode) String() string {
	switch m {
	case ModeUnregistered:
		return "unregistered"
	case ModeNoActiveConversation:
		return "no_active_conversation"
	case ModeInInterview:
		return "in_interview"
	case ModeInFeedback:
		return "in_feedback"
	default:
		return "unknown"
	}
}

// Completer is the completion-client boundary: one user turn plus a system
// instruction in, the model's reply out. An empty reply with nil error is
// the absence signal.
type Completer interface {
	GenerateReply(ctx context.Context, userTurn, systemInstruction string) (string, error)
}

// Lifecycle commands, matched case- and whitespace-insensitively.
const (
	cmdRemove        = "remove"
	cmdReset         = "reset"
	cmdStartFeedback = "start feedback"
	// registerKeyword triggers the registration path for unknown senders.
	registerKeyword = "register"
)

// normalizeCommand lowers, trims and collapses internal whitespace so
// command matching is insensitive to casing and spacing.
func normalizeCommand(body string) string {
	return strings.Join(strings.Fields(strings.ToLower(body)), " ")
}

// senderLocks serializes router invocations per sender. Two messages from
// the same founder arriving back to back would otherwise race on the same
// active conversation row.
type senderLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSenderLocks() *senderLocks {
	return &senderLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for key and returns its unlock function. Entries
// are kept for the lifetime of the process; the map is bounded by the
// registered user population.
func (l *senderLocks) acquire(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
