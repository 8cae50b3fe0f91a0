// Package audit records security-relevant events of the token lifecycle.
// Sinks never fail the operation that emitted the event.
package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
)

type EventType string

const (
	EventLogin                EventType = "login"
	EventRefresh              EventType = "refresh"
	EventRefreshReuseDetected EventType = "refresh_reuse_detected"
	EventLogout               EventType = "logout"
	EventFamilyRevoked        EventType = "family_revoked"
	EventConsistencyViolation EventType = "consistency_violation"
)

type Event struct {
	Type   EventType      `json:"type"`
	UserID string         `json:"user_id"`
	At     time.Time      `json:"at"`
	Detail map[string]any `json:"detail,omitempty"`
}

type Sink interface {
	Emit(ctx context.Context, e Event)
}

// LogSink writes events to the structured log. Reuse detection and
// consistency violations are logged at WARN, everything else at INFO.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	args := []any{"event", string(e.Type), "user_id", e.UserID, "at", e.At}
	for k, v := range e.Detail {
		args = append(args, k, v)
	}

	switch e.Type {
	case EventRefreshReuseDetected, EventConsistencyViolation:
		s.logger.Warn(ctx, "security event", args...)
	default:
		s.logger.Info(ctx, "security event", args...)
	}
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
