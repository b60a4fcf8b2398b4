package history

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps turns in memory, grouped by session. Suitable for
// development and tests; everything is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*Turn
	byID     map[string]*Turn
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]*Turn),
		byID:     make(map[string]*Turn),
	}
}

func (s *MemoryStore) Append(_ context.Context, turn *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *turn
	s.sessions[turn.SessionID] = append(s.sessions[turn.SessionID], &stored)
	s.byID[turn.ID] = &stored
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[sessionID]
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = *t
	}
	return out, nil
}

func (s *MemoryStore) RecordFeedback(_ context.Context, turnID string, feedback int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn, ok := s.byID[turnID]
	if !ok {
		return fmt.Errorf("turn %s not found", turnID)
	}
	turn.Feedback = feedback
	return nil
}

func (s *MemoryStore) Close() error { return nil }
