package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type AlertEventType string

const (
	AlertCreated     AlertEventType = "alert.created"
	AlertEscalated   AlertEventType = "alert.escalated"
	AlertDeescalated AlertEventType = "alert.deescalated"
	AlertResolved    AlertEventType = "alert.resolved"
)

// AlertEvent describes one state change of a risk alert.
type AlertEvent struct {
	Type          AlertEventType `json:"type"`
	AlertID       uuid.UUID      `json:"alert_id"`
	StudentID     uuid.UUID      `json:"student_id"`
	MentorID      *uuid.UUID     `json:"mentor_id,omitempty"`
	RiskLevel     string         `json:"risk_level"`
	PreviousLevel string         `json:"previous_level,omitempty"`
	RiskScore     float64        `json:"risk_score"`
	Message       string         `json:"message"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Publisher delivers alert events downstream. Delivery is best-effort: alert
// rows are the source of truth and a failed publish never rolls them back.
type Publisher interface {
	Publish(ctx context.Context, evts ...AlertEvent) error
	Close() error
}

type nop struct{}

func NewNop() Publisher { return nop{} }

func (nop) Publish(context.Context, ...AlertEvent) error { return nil }

func (nop) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []AlertEvent
}

func (r *Recorder) Publish(_ context.Context, evts ...AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evts...)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AlertEvent(nil), r.events...)
}

func (r *Recorder) Types() []AlertEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AlertEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
