package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/voxprompt/pkg/logger"
)

// SessionStateStorage persists the single saved session state row: the
// last prompt text and selected options, auto-saved by the UI so a
// reload picks up where the user left off.
type SessionStateStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSessionStateStorage creates a new SQLite session state storage
func NewSessionStateStorage(db *sql.DB, log *logger.Logger) (*SessionStateStorage, error) {
	storage := &SessionStateStorage{
		db:     db,
		logger: log.Named("sqlite-session"),
	}

	if err := storage.initDB(); err != nil {
		return nil, err
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *SessionStateStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			prompt_text TEXT NOT NULL,
			strategy TEXT NOT NULL,
			tone TEXT,
			model TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create session_state table: %w", err)
	}

	return nil
}

// Save upserts the session state. There is exactly one row.
func (s *SessionStateStorage) Save(state *SessionState) error {
	_, err := s.db.Exec(
		`INSERT INTO session_state (id, prompt_text, strategy, tone, model, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			prompt_text = excluded.prompt_text,
			strategy = excluded.strategy,
			tone = excluded.tone,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		state.PromptText,
		state.Strategy,
		state.Tone,
		state.Model,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}

	return nil
}

// Load returns the saved session state, or nil when none has been saved.
func (s *SessionStateStorage) Load() (*SessionState, error) {
	var state SessionState
	var tone sql.NullString
	var updatedAt string

	err := s.db.QueryRow(
		`SELECT prompt_text, strategy, tone, model, updated_at FROM session_state WHERE id = 1`,
	).Scan(&state.PromptText, &state.Strategy, &tone, &state.Model, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	state.Tone = tone.String

	parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		s.logger.Warn("Invalid updated_at in session state", logger.String("value", updatedAt))
	} else {
		state.UpdatedAt = parsed
	}

	return &state, nil
}
