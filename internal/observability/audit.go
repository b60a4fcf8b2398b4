package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventLogin       AuditEventType = "auth.login"
	AuditEventLoginFailed AuditEventType = "auth.login_failed"
	AuditEventAsk         AuditEventType = "query.ask"
	AuditEventSearch      AuditEventType = "query.search"
	AuditEventFeedback    AuditEventType = "query.feedback"
	AuditEventIngest      AuditEventType = "corpus.ingest"
)

// AuditEvent is one JSONL audit log entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	UserID      string         `json:"user_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger appends events as JSON lines. A nil logger discards everything,
// so callers never need to guard.
type AuditLogger struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

// NewAuditLogger writes audit events to path. "stdout"/"stderr" are treated
// as streams; anything else is opened append-only.
func NewAuditLogger(path string) (*AuditLogger, error) {
	switch path {
	case "", "stdout":
		return &AuditLogger{writer: os.Stdout}, nil
	case "stderr":
		return &AuditLogger{writer: os.Stderr}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLogger{writer: f, closer: f}, nil
}

// NewAuditWriter wraps an existing writer, mainly for tests.
func NewAuditWriter(w io.Writer) *AuditLogger {
	return &AuditLogger{writer: w}
}

// Log writes one event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// Close releases the underlying file, if any.
func (l *AuditLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// LogLogin records an authentication attempt.
func (l *AuditLogger) LogLogin(username string, success bool) {
	event := &AuditEvent{
		EventType: AuditEventLogin,
		UserID:    username,
		Success:   success,
		Message:   fmt.Sprintf("login for %s", username),
	}
	if !success {
		event.EventType = AuditEventLoginFailed
	}
	l.Log(event)
}

// LogAsk records a question and its outcome.
func (l *AuditLogger) LogAsk(userID, sessionID string, duration time.Duration, hits int, err error) {
	event := &AuditEvent{
		EventType: AuditEventAsk,
		UserID:    userID,
		SessionID: sessionID,
		Success:   err == nil,
		Duration:  duration,
		Details:   map[string]any{"hits": hits},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogFeedback records a rating on a recorded turn.
func (l *AuditLogger) LogFeedback(userID, turnID string, feedback int) {
	l.Log(&AuditEvent{
		EventType: AuditEventFeedback,
		UserID:    userID,
		Success:   true,
		Details:   map[string]any{"turn_id": turnID, "feedback": feedback},
	})
}

// LogIngest records one document ingestion.
func (l *AuditLogger) LogIngest(source string, chunks int, skipped bool, err error) {
	event := &AuditEvent{
		EventType: AuditEventIngest,
		Success:   err == nil,
		Message:   source,
		Details:   map[string]any{"chunks": chunks, "skipped": skipped},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}
