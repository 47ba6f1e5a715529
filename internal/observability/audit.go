package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventOptimize       AuditEventType = "optimize.complete"
	AuditEventApplied        AuditEventType = "optimize.applied"
	AuditEventOracleFallback AuditEventType = "oracle.fallback"
	AuditEventOutcome        AuditEventType = "model.outcome"
	AuditEventWorkflowStart  AuditEventType = "workflow.start"
	AuditEventWorkflowEnd    AuditEventType = "workflow.end"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	SessionID  string         `json:"session_id"`
	FlowID     string         `json:"flow_id,omitempty"`
	Signature  string         `json:"signature,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // file path, "stdout" or "stderr"
	SessionID  string
}

// AuditLogger appends JSON lines describing what the optimizer changed.
// A nil *AuditLogger discards everything.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	closer    io.Closer
	sessionID string
	enabled   bool
	now       func() time.Time
}

// NewAuditLogger opens the configured output.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	l := &AuditLogger{enabled: cfg.Enabled, sessionID: cfg.SessionID, now: time.Now}
	if l.sessionID == "" {
		l.sessionID = uuid.NewString()
	}
	switch cfg.OutputPath {
	case "", "stdout":
		l.writer = os.Stdout
	case "stderr":
		l.writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		l.writer, l.closer = f, f
	}
	return l, nil
}

// NewAuditWriter logs to w; used by tests and embedding callers.
func NewAuditWriter(w io.Writer, sessionID string) *AuditLogger {
	return &AuditLogger{writer: w, sessionID: sessionID, enabled: true, now: time.Now}
}

// Log writes one event.
func (l *AuditLogger) Log(event AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogOptimize records a completed optimization run.
func (l *AuditLogger) LogOptimize(flowID, signature string, cacheHit bool, applied int, improvement float64) {
	_ = l.Log(AuditEvent{
		EventType: AuditEventOptimize,
		FlowID:    flowID,
		Signature: signature,
		Success:   true,
		Details: map[string]any{
			"cache_hit":            cacheHit,
			"applied":              applied,
			"expected_improvement": improvement,
		},
	})
}

// LogApplied records one structural or advisory change.
func (l *AuditLogger) LogApplied(flowID, kind string, targets []string, description string) {
	_ = l.Log(AuditEvent{
		EventType: AuditEventApplied,
		FlowID:    flowID,
		Success:   true,
		Message:   description,
		Details:   map[string]any{"type": kind, "targets": targets},
	})
}

// LogOracleFallback records why the oracle opinion was discarded.
func (l *AuditLogger) LogOracleFallback(flowID, reason string) {
	_ = l.Log(AuditEvent{
		EventType: AuditEventOracleFallback,
		FlowID:    flowID,
		Success:   false,
		Message:   reason,
	})
}

// LogOutcome records observed improvement feedback for a model.
func (l *AuditLogger) LogOutcome(signature string, observed, accuracy float64) {
	_ = l.Log(AuditEvent{
		EventType: AuditEventOutcome,
		Signature: signature,
		Success:   true,
		Details:   map[string]any{"observed_improvement": observed, "accuracy": accuracy},
	})
}

// LogWorkflowStart records a submitted optimization workflow.
func (l *AuditLogger) LogWorkflowStart(workflowID, flowID string) {
	_ = l.Log(AuditEvent{EventType: AuditEventWorkflowStart, WorkflowID: workflowID, FlowID: flowID, Success: true})
}

// LogWorkflowEnd records the end of an optimization workflow.
func (l *AuditLogger) LogWorkflowEnd(workflowID, flowID string, err error) {
	ev := AuditEvent{EventType: AuditEventWorkflowEnd, WorkflowID: workflowID, FlowID: flowID, Success: err == nil}
	if err != nil {
		ev.Message = err.Error()
	}
	_ = l.Log(ev)
}

// Close closes the underlying file, if any.
func (l *AuditLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
