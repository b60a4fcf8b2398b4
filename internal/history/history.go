// Package history records conversation turns per session and exposes a
// bounded window of them for prompt construction.
package history

import (
	"context"
	"time"

	"github.com/efebarandurmaz/kiln/internal/llm"
)

// Turn is one query/answer exchange within a session.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	ChunkIDs  []string  `json:"chunk_ids,omitempty"`
	Feedback  int       `json:"feedback"` // -1 down, 0 none, 1 up
	CreatedAt time.Time `json:"created_at"`
}

// Store persists turns.
type Store interface {
	// Append records a completed turn.
	Append(ctx context.Context, turn *Turn) error
	// Recent returns up to n most recent turns for a session, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]Turn, error)
	// RecordFeedback sets the feedback value on an existing turn.
	RecordFeedback(ctx context.Context, turnID string, feedback int) error
	// Close releases resources.
	Close() error
}

// Window converts turns into chat messages, oldest first. Each turn yields
// a user and an assistant message, so maxTurns turns produce 2*maxTurns
// messages.
func Window(turns []Turn, maxTurns int) []llm.Message {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	msgs := make([]llm.Message, 0, len(turns)*2)
	for _, t := range turns {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Query},
			llm.Message{Role: llm.RoleAssistant, Content: t.Answer},
		)
	}
	return msgs
}
