// Package models defines the core data structures for InterviewBot.
//
// It includes the registered founder profile, the single mutable active
// conversation per founder, and immutable archived conversations, which are
// shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// MaxNameLength defines the maximum allowed length for a founder's display name
	MaxNameLength = 100
	// MaxPersonaLength defines the maximum allowed length for a target-persona description
	MaxPersonaLength = 2048
)

// Error variables for better error handling and testability
var (
	ErrEmptyPhoneNumber = errors.New("phone number cannot be empty")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNameTooLong      = errors.New("name exceeds maximum length")
	ErrEmptyPersona     = errors.New("target persona cannot be empty")
	ErrPersonaTooLong   = errors.New("target persona exceeds maximum length")
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
)

// User is a registered founder identified by a unique phone number.
// Users are created on registration and deleted only by the "remove" command.
type User struct {
	ID            string    `json:"id"`
	PhoneNumber   string    `json:"phone_number"`
	Name          string    `json:"name"`
	TargetPersona string    `json:"target_persona"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate performs validation on a User structure.
func (u *User) Validate() error {
	if strings.TrimSpace(u.PhoneNumber) == "" {
		return ErrEmptyPhoneNumber
	}
	if strings.TrimSpace(u.Name) == "" {
		return ErrEmptyName
	}
	if len(u.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if strings.TrimSpace(u.TargetPersona) == "" {
		return ErrEmptyPersona
	}
	if len(u.TargetPersona) > MaxPersonaLength {
		return ErrPersonaTooLong
	}
	return nil
}

// Turn is one paired exchange: the founder's message and the assistant's
// reply. Both sides are recorded together, never independently, which keeps
// the transcript pairwise by construction.
type Turn struct {
	User      string    `json:"user"`
	Bot       string    `json:"bot"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is an ordered sequence of turns.
type Transcript []Turn

// Append returns the transcript with one full (user, bot) pair appended.
func (t Transcript) Append(user, bot string, at time.Time) Transcript {
	return append(t, Turn{User: user, Bot: bot, Timestamp: at})
}

// Clone returns an independent copy of the transcript, suitable for
// archival snapshots.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Equal reports whether two transcripts hold identical turns.
func (t Transcript) Equal(other Transcript) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i].User != other[i].User || t[i].Bot != other[i].Bot || !t[i].Timestamp.Equal(other[i].Timestamp) {
			return false
		}
	}
	return true
}

// ActiveConversation is the single in-progress conversation for a user.
// The interview transcript holds normal practice turns; the feedback
// transcript holds exchanges made after "start feedback".
type ActiveConversation struct {
	UserID    string     `json:"user_id"`
	Interview Transcript `json:"interview"`
	Feedback  Transcript `json:"feedback"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Validate performs validation on an ActiveConversation structure.
func (c *ActiveConversation) Validate() error {
	if c.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// PreviousConversation is an immutable archival snapshot created when an
// active conversation is reset. It is never mutated or deleted afterwards.
type PreviousConversation struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Interview Transcript `json:"interview"`
	Feedback  Transcript `json:"feedback"`
	CreatedAt time.Time  `json:"created_at"`
}
