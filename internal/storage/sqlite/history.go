package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/voxprompt/pkg/logger"
)

// HistoryStorage handles storage of the prompt history list: a bounded,
// most-recent-first list of prior input prompts with move-to-front
// deduplication.
type HistoryStorage struct {
	db         *sql.DB
	maxEntries int
	logger     *logger.Logger
}

// NewHistoryStorage creates a new SQLite history storage
func NewHistoryStorage(db *sql.DB, maxEntries int, log *logger.Logger) (*HistoryStorage, error) {
	storage := &HistoryStorage{
		db:         db,
		maxEntries: maxEntries,
		logger:     log.Named("sqlite-history"),
	}

	if err := storage.initDB(); err != nil {
		return nil, err
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *HistoryStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS prompt_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create prompt_history table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_prompt_history_created_at ON prompt_history(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create prompt_history index: %w", err)
	}

	return nil
}

// Save records one submitted prompt. A prompt identical to an existing
// entry moves to the front instead of duplicating; the list is then
// trimmed to the configured maximum. Blank prompts are ignored.
func (s *HistoryStorage) Save(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM prompt_history WHERE text = ?`, text); err != nil {
		return fmt.Errorf("failed to dedupe prompt history: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO prompt_history (text, created_at) VALUES (?, ?)`,
		text, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to insert prompt history entry: %w", err)
	}

	// Newest rows have the highest ids, so trimming by id keeps the
	// most recent maxEntries.
	if _, err := tx.Exec(
		`DELETE FROM prompt_history
		WHERE id NOT IN (SELECT id FROM prompt_history ORDER BY id DESC LIMIT ?)`,
		s.maxEntries,
	); err != nil {
		return fmt.Errorf("failed to trim prompt history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prompt history: %w", err)
	}

	return nil
}

// List returns the history entries, most recent first.
func (s *HistoryStorage) List() ([]*PromptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, text, created_at
		FROM prompt_history
		ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt history: %w", err)
	}
	defer rows.Close()

	return s.scanPromptRows(rows)
}

// Clear removes all history entries.
func (s *HistoryStorage) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM prompt_history`); err != nil {
		return fmt.Errorf("failed to clear prompt history: %w", err)
	}
	return nil
}

// scanPromptRows scans database rows into PromptRecord structs
func (s *HistoryStorage) scanPromptRows(rows *sql.Rows) ([]*PromptRecord, error) {
	var records []*PromptRecord
	for rows.Next() {
		var record PromptRecord
		var createdAt string

		if err := rows.Scan(&record.ID, &record.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan prompt history row: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			s.logger.Warn("Invalid created_at in prompt history", logger.String("value", createdAt))
		} else {
			record.CreatedAt = parsed
		}

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prompt history rows: %w", err)
	}

	return records, nil
}
