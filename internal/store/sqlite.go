package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/FounderLoop/interviewbot/internal/models"
	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// CreateUser inserts a new user, enforcing phone-number uniqueness.
func (s *SQLiteStore) CreateUser(u models.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO users (id, phone_number, name, target_persona, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, u.ID, u.PhoneNumber, u.Name, u.TargetPersona, u.CreatedAt)
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			slog.Debug("SQLiteStore CreateUser duplicate phone", "phone", u.PhoneNumber)
			return ErrPhoneNumberTaken
		}
		slog.Error("SQLiteStore CreateUser failed", "error", err, "phone", u.PhoneNumber)
		return fmt.Errorf("failed to insert user %s: %w", u.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "id", u.ID, "phone", u.PhoneNumber)
	return nil
}

// GetUserByPhone retrieves a user by exact phone-number match.
func (s *SQLiteStore) GetUserByPhone(phone string) (*models.User, error) {
	query := `SELECT id, phone_number, name, target_persona, created_at FROM users WHERE phone_number = ?`

	var u models.User
	err := s.db.QueryRow(query, phone).Scan(&u.ID, &u.PhoneNumber, &u.Name, &u.TargetPersona, &u.CreatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserByPhone not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query user by phone: %w", err)
	}
	return &u, nil
}

// ListUsers retrieves all registered users.
func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT id, phone_number, name, target_persona, created_at FROM users ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListUsers failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.PhoneNumber, &u.Name, &u.TargetPersona, &u.CreatedAt); err != nil {
			slog.Error("SQLiteStore ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListUsers rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// DeleteUser removes a user and their active conversation in one transaction.
func (s *SQLiteStore) DeleteUser(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore DeleteUser begin failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM active_conversations WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore DeleteUser conversation delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete active conversation: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		slog.Error("SQLiteStore DeleteUser user delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore DeleteUser commit failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to commit delete transaction: %w", err)
	}
	slog.Debug("SQLiteStore DeleteUser succeeded", "userID", userID)
	return nil
}

// GetActiveConversation retrieves the user's active conversation.
func (s *SQLiteStore) GetActiveConversation(userID string) (*models.ActiveConversation, error) {
	query := `SELECT user_id, interview, feedback, created_at, updated_at FROM active_conversations WHERE user_id = ?`

	var c models.ActiveConversation
	var interviewJSON, feedbackJSON []byte
	err := s.db.QueryRow(query, userID).Scan(&c.UserID, &interviewJSON, &feedbackJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetActiveConversation not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetActiveConversation failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active conversation: %w", err)
	}
	if c.Interview, err = unmarshalTranscript(interviewJSON); err != nil {
		return nil, err
	}
	if c.Feedback, err = unmarshalTranscript(feedbackJSON); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveActiveConversation inserts or updates the user's active conversation.
func (s *SQLiteStore) SaveActiveConversation(c models.ActiveConversation) error {
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
		INSERT INTO active_conversations (user_id, interview, feedback, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET
			interview = excluded.interview,
			feedback = excluded.feedback,
			updated_at = excluded.updated_at`

	_, err = s.db.Exec(query, c.UserID, interviewJSON, feedbackJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveActiveConversation failed", "error", err, "userID", c.UserID)
		return fmt.Errorf("failed to save active conversation: %w", err)
	}
	slog.Debug("SQLiteStore SaveActiveConversation succeeded", "userID", c.UserID,
		"interview_turns", len(c.Interview), "feedback_turns", len(c.Feedback))
	return nil
}

// ArchiveActiveConversation snapshots the active conversation into
// previous_conversations and deletes the active row, in one transaction.
func (s *SQLiteStore) ArchiveActiveConversation(userID string) (*models.PreviousConversation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore ArchiveActiveConversation begin failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	var interviewJSON, feedbackJSON []byte
	err = tx.QueryRow(`SELECT interview, feedback FROM active_conversations WHERE user_id = ?`, userID).
		Scan(&interviewJSON, &feedbackJSON)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore ArchiveActiveConversation nothing to archive", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore ArchiveActiveConversation query failed", "error", err, "userID", userID)
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

	insert := `INSERT INTO previous_conversations (id, user_id, interview, feedback, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.Exec(insert, prev.ID, prev.UserID, interviewJSON, feedbackJSON, prev.CreatedAt); err != nil {
		slog.Error("SQLiteStore ArchiveActiveConversation insert failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to insert previous conversation: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM active_conversations WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore ArchiveActiveConversation delete failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to delete active conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore ArchiveActiveConversation commit failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	slog.Debug("SQLiteStore ArchiveActiveConversation succeeded", "userID", userID, "archiveID", prev.ID)
	return &prev, nil
}

// ListPreviousConversations retrieves all archives for a user, newest first.
func (s *SQLiteStore) ListPreviousConversations(userID string) ([]models.PreviousConversation, error) {
	query := `SELECT id, user_id, interview, feedback, created_at
			  FROM previous_conversations WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		slog.Error("SQLiteStore ListPreviousConversations failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query previous conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.PreviousConversation
	for rows.Next() {
		var c models.PreviousConversation
		var interviewJSON, feedbackJSON []byte
		if err := rows.Scan(&c.ID, &c.UserID, &interviewJSON, &feedbackJSON, &c.CreatedAt); err != nil {
			slog.Error("SQLiteStore ListPreviousConversations scan failed", "error", err)
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
		slog.Error("SQLiteStore ListPreviousConversations rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate previous conversation rows: %w", err)
	}
	return conversations, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
