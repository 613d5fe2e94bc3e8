// Package events carries moderation and lifecycle events from the services to
// whoever cares: the badge refresher in-process and, optionally, RabbitMQ.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Type string

const (
	ReportCreated       Type = "report.created"
	ReportValidated     Type = "report.validated"
	ReportRejected      Type = "report.rejected"
	ReportStatusChanged Type = "report.status_changed"
	UserRegistered      Type = "user.registered"
	UserValidated       Type = "user.validated"
	UserRejected        Type = "user.rejected"
)

// AffectsBadges 事件是否影响待审核数量
func (t Type) AffectsBadges() bool {
	switch t {
	case ReportCreated, ReportValidated, ReportRejected, ReportStatusChanged,
		UserRegistered, UserValidated, UserRejected:
		return true
	}
	return false
}

type Event struct {
	Type      Type      `json:"type"`
	SubjectID string    `json:"subject_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	At        time.Time `json:"at"`
}

func New(t Type, subjectID, actorID string) Event {
	return Event{Type: t, SubjectID: subjectID, ActorID: actorID, At: time.Now().UTC()}
}

// Publisher delivers an event. Publish failures never roll back the write that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Handler func(Event)

// Bus 进程内同步分发，订阅者不得阻塞
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

func (b *Bus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
	return nil
}

// Multi fans an event out to several publishers. Every publisher is tried; failures
// are logged and the first one is returned.
type Multi struct {
	publishers []Publisher
	logger     *zap.Logger
}

func NewMulti(logger *zap.Logger, publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers, logger: logger}
}

func (m *Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m.publishers {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			m.logger.Warn("event publish failed",
				zap.String("type", string(e.Type)),
				zap.String("subject_id", e.SubjectID),
				zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
