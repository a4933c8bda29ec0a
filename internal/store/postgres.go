package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/FounderLoop/interviewbot/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultSchema is the schema namespace used when none is configured
	DefaultSchema = "interviewbot"
)

// pqUniqueViolation is the Postgres error code for unique constraint violations.
const pqUniqueViolation = "23505"

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db     *sql.DB
	schema string
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "", "schema", cfg.Schema)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	schema := cfg.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	if err := validateSchemaName(schema); err != nil {
		slog.Error("PostgresStore schema name rejected", "schema", schema)
		return nil, err
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	if _, err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		slog.Error("Failed to create schema", "schema", schema, "error", err)
		return nil, fmt.Errorf("failed to create schema %s: %w", schema, err)
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations", "schema", schema)
	migrations := strings.ReplaceAll(postgresMigrations, "{{schema}}", schema)
	if _, err := db.Exec(migrations); err != nil {
		slog.Error("Failed to run migrations", "schema", schema, "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully", "schema", schema)
	return &PostgresStore{db: db, schema: schema}, nil
}

// table returns a schema-qualified table name.
func (s *PostgresStore) table(name string) string {
	return s.schema + "." + name
}

// CreateUser inserts a new user, enforcing phone-number uniqueness.
func (s *PostgresStore) CreateUser(u models.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO ` + s.table("users") + ` (id, phone_number, name, target_persona, created_at)
			  VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.Exec(query, u.ID, u.PhoneNumber, u.Name, u.TargetPersona, u.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			slog.Debug("PostgresStore CreateUser duplicate phone", "phone", u.PhoneNumber)
			return ErrPhoneNumberTaken
		}
		slog.Error("PostgresStore CreateUser failed", "error", err, "phone", u.PhoneNumber)
		return fmt.Errorf("failed to insert user %s: %w", u.PhoneNumber, err)
	}
	slog.Debug("PostgresStore CreateUser succeeded", "id", u.ID, "phone", u.PhoneNumber)
	return nil
}

// GetUserByPhone retrieves a user by exact phone-number match.
func (s *PostgresStore) GetUserByPhone(phone string) (*models.User, error) {
	query := `SELECT id, phone_number, name, target_persona, created_at
			  FROM ` + s.table("users") + ` WHERE phone_number = $1`

	var u models.User
	err := s.db.QueryRow(query, phone).Scan(&u.ID, &u.PhoneNumber, &u.Name, &u.TargetPersona, &u.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserByPhone not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query user by phone: %w", err)
	}
	slog.Debug("PostgresStore GetUserByPhone found", "phone", phone, "id", u.ID)
	return &u, nil
}

// ListUsers retrieves all registered users.
func (s *PostgresStore) ListUsers() ([]models.User, error) {
	query := `SELECT id, phone_number, name, target_persona, created_at
			  FROM ` + s.table("users") + ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		slog.Error("PostgresStore ListUsers failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.PhoneNumber, &u.Name, &u.TargetPersona, &u.CreatedAt); err != nil {
			slog.Error("PostgresStore ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListUsers rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	slog.Debug("PostgresStore ListUsers succeeded", "count", len(users))
	return users, nil
}

// DeleteUser removes a user and their active conversation in one transaction.
func (s *PostgresStore) DeleteUser(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore DeleteUser begin failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM `+s.table("active_conversations")+` WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore DeleteUser conversation delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete active conversation: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM `+s.table("users")+` WHERE id = $1`, userID); err != nil {
		slog.Error("PostgresStore DeleteUser user delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore DeleteUser commit failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to commit delete transaction: %w", err)
	}
	slog.Debug("PostgresStore DeleteUser succeeded", "userID", userID)
	return nil
}

// GetActiveConversation retrieves the user's active conversation.
func (s *PostgresStore) GetActiveConversation(userID string) (*models.ActiveConversation, error) {
	query := `SELECT user_id, interview, feedback, created_at, updated_at
			  FROM ` + s.table("active_conversations") + ` WHERE user_id = $1`

	var c models.ActiveConversation
	var interviewJSON, feedbackJSON []byte
	err := s.db.QueryRow(query, userID).Scan(&c.UserID, &interviewJSON, &feedbackJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetActiveConversation not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetActiveConversation failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active conversation: %w", err)
	}
	if c.Interview, err = unmarshalTranscript(interviewJSON); err != nil {
		return nil, err
	}
	if c.Feedback, err = unmarshalTranscript(feedbackJSON); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore GetActiveConversation found", "userID", userID, "interview_turns", len(c.Interview))
	return &c, nil
}

// SaveActiveConversation inserts or updates the user's active conversation.
func (s *PostgresStore) SaveActiveConversation(c models.ActiveConversation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	interviewJSON, err := marshalTranscript(c.Interview)
	if err != nil {
		return err
	}
	feedbackJSON, err := marshalTranscript(c.Feedback)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO ` + s.table("active_conversations") + ` (user_id, interview, feedback, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET
			interview = EXCLUDED.interview,
			feedback = EXCLUDED.feedback,
			updated_at = EXCLUDED.updated_at`

	_, err = s.db.Exec(query, c.UserID, interviewJSON, feedbackJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveActiveConversation failed", "error", err, "userID", c.UserID)
		return fmt.Errorf("failed to save active conversation: %w", err)
	}
	slog.Debug("PostgresStore SaveActiveConversation succeeded", "userID", c.UserID,
		"interview_turns", len(c.Interview), "feedback_turns", len(c.Feedback))
	return nil
}

// ArchiveActiveConversation snapshots the active conversation into
// previous_conversations and deletes the active row, in one transaction.
func (s *PostgresStore) ArchiveActiveConversation(userID string) (*models.PreviousConversation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore ArchiveActiveConversation begin failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	var interviewJSON, feedbackJSON []byte
	query := `SELECT interview, feedback FROM ` + s.table("active_conversations") + ` WHERE user_id = $1 FOR UPDATE`
	err = tx.QueryRow(query, userID).Scan(&interviewJSON, &feedbackJSON)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore ArchiveActiveConversation nothing to archive", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore ArchiveActiveConversation query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to read active conversation: %w", err)
	}

	prev := models.PreviousConversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if prev.Interview, err = unmarshalTranscript(interviewJSON); err != nil {
		return nil, err
	}
	if prev.Feedback, err = unmarshalTranscript(feedbackJSON); err != nil {
		return nil, err
	}

	insert := `INSERT INTO ` + s.table("previous_conversations") + ` (id, user_id, interview, feedback, created_at)
			   VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(insert, prev.ID, prev.UserID, interviewJSON, feedbackJSON, prev.CreatedAt); err != nil {
		slog.Error("PostgresStore ArchiveActiveConversation insert failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to insert previous conversation: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM `+s.table("active_conversations")+` WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore ArchiveActiveConversation delete failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to delete active conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore ArchiveActiveConversation commit failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	slog.Debug("PostgresStore ArchiveActiveConversation succeeded", "userID", userID, "archiveID", prev.ID)
	return &prev, nil
}

// ListPreviousConversations retrieves all archives for a user, newest first.
func (s *PostgresStore) ListPreviousConversations(userID string) ([]models.PreviousConversation, error) {
	query := `SELECT id, user_id, interview, feedback, created_at
			  FROM ` + s.table("previous_conversations") + ` WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		slog.Error("PostgresStore ListPreviousConversations failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query previous conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.PreviousConversation
	for rows.Next() {
		var c models.PreviousConversation
		var interviewJSON, feedbackJSON []byte
		if err := rows.Scan(&c.ID, &c.UserID, &interviewJSON, &feedbackJSON, &c.CreatedAt); err != nil {
			slog.Error("PostgresStore ListPreviousConversations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan previous conversation row: %w", err)
		}
		if c.Interview, err = unmarshalTranscript(interviewJSON); err != nil {
			return nil, err
		}
		if c.Feedback, err = unmarshalTranscript(feedbackJSON); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListPreviousConversations rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate previous conversation rows: %w", err)
	}
	slog.Debug("PostgresStore ListPreviousConversations succeeded", "userID", userID, "count", len(conversations))
	return conversations, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
