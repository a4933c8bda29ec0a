// Package store provides storage backends for InterviewBot.
//
// It includes PostgreSQL and SQLite backed stores plus an in-memory store
// used in tests. All backends enforce the single-active-conversation
// invariant and apply reset/remove as atomic units.
package store

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/FounderLoop/interviewbot/internal/models"
	"github.com/google/uuid"
)

// Store defines the persistence contract shared by all backends.
//
// Lookup methods return (nil, nil) when the record does not exist.
type Store interface {
	// CreateUser inserts a new user. The phone number must not already be
	// registered; registration is all-or-nothing.
	CreateUser(u models.User) error

	// GetUserByPhone retrieves a user by exact phone-number match.
	GetUserByPhone(phone string) (*models.User, error)

	// ListUsers retrieves all registered users.
	ListUsers() ([]models.User, error)

	// DeleteUser removes a user and their active conversation in one
	// transaction. Archived conversations are left untouched.
	DeleteUser(userID string) error

	// GetActiveConversation retrieves the user's active conversation.
	GetActiveConversation(userID string) (*models.ActiveConversation, error)

	// SaveActiveConversation inserts or updates the user's active
	// conversation.
	SaveActiveConversation(c models.ActiveConversation) error

	// ArchiveActiveConversation snapshots the active conversation into a new
	// previous conversation and deletes the active row, in one transaction.
	// Returns (nil, nil) when the user has no active conversation.
	ArchiveActiveConversation(userID string) (*models.PreviousConversation, error)

	// ListPreviousConversations retrieves all archived conversations for a
	// user, newest first.
	ListPreviousConversations(userID string) ([]models.PreviousConversation, error)

	// Close releases the underlying resources.
	Close() error
}

// ErrPhoneNumberTaken is returned by CreateUser when the phone number is
// already registered.
var ErrPhoneNumberTaken = fmt.Errorf("phone number already registered")

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string (Postgres URL or SQLite path).
	DSN string
	// Schema is the Postgres schema namespace the tables live under.
	Schema string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets a PostgreSQL DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSchema sets the Postgres schema namespace. Ignored by other backends.
func WithSchema(schema string) Option {
	return func(o *Opts) { o.Schema = schema }
}

// DetectDSNType determines the database driver implied by a DSN.
// Postgres DSNs use URL or key=value forms; anything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// schemaNameRe restricts schema names to safe identifiers since the schema is
// interpolated into DDL.
var schemaNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validateSchemaName(schema string) error {
	if !schemaNameRe.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	return nil
}

// InMemoryStore is a map-backed store used in unit tests. A single mutex
// makes every operation atomic, mirroring the transactional backends.
type InMemoryStore struct {
	mu            sync.Mutex
	users         map[string]models.User               // keyed by user ID
	conversations map[string]models.ActiveConversation // keyed by user ID
	archives      []models.PreviousConversation
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:         make(map[string]models.User),
		conversations: make(map[string]models.ActiveConversation),
	}
}

// CreateUser inserts a new user, enforcing phone-number uniqueness.
func (s *InMemoryStore) CreateUser(u models.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.PhoneNumber == u.PhoneNumber {
			return ErrPhoneNumberTaken
		}
	}
	s.users[u.ID] = u
	return nil
}

// GetUserByPhone retrieves a user by phone number.
func (s *InMemoryStore) GetUserByPhone(phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PhoneNumber == phone {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

// ListUsers retrieves all registered users.
func (s *InMemoryStore) ListUsers() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

// DeleteUser removes a user and their active conversation.
func (s *InMemoryStore) DeleteUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, userID)
	delete(s.users, userID)
	return nil
}

// GetActiveConversation retrieves the user's active conversation.
func (s *InMemoryStore) GetActiveConversation(userID string) (*models.ActiveConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[userID]
	if !ok {
		return nil, nil
	}
	c.Interview = c.Interview.Clone()
	c.Feedback = c.Feedback.Clone()
	return &c, nil
}

// SaveActiveConversation inserts or updates the user's active conversation.
func (s *InMemoryStore) SaveActiveConversation(c models.ActiveConversation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Interview = c.Interview.Clone()
	c.Feedback = c.Feedback.Clone()
	s.conversations[c.UserID] = c
	return nil
}

// ArchiveActiveConversation snapshots and deletes the active conversation.
func (s *InMemoryStore) ArchiveActiveConversation(userID string) (*models.PreviousConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[userID]
	if !ok {
		return nil, nil
	}
	prev := models.PreviousConversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Interview: c.Interview.Clone(),
		Feedback:  c.Feedback.Clone(),
		CreatedAt: time.Now().UTC(),
	}
	s.archives = append(s.archives, prev)
	delete(s.conversations, userID)
	return &prev, nil
}

// ListPreviousConversations retrieves all archives for a user, newest first.
func (s *InMemoryStore) ListPreviousConversations(userID string) ([]models.PreviousConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PreviousConversation
	for i := len(s.archives) - 1; i >= 0; i-- {
		if s.archives[i].UserID == userID {
			out = append(out, s.archives[i])
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
