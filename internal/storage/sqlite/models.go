package sqlite

import "time"

// PromptRecord is one prior input prompt in the history list
type PromptRecord struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionState is the single saved UI session blob: the last prompt the
// user was working on and the options they had selected.
type SessionState struct {
	PromptText string    `json:"prompt_text"`
	Strategy   string    `json:"strategy"`
	Tone       string    `json:"tone,omitempty"`
	Model      string    `json:"model"`
	UpdatedAt  time.Time `json:"updated_at"`
}
