package event

import (
	"chat-relay/domain"
	"time"
)

// DomainEvent is anything the hub can push to a live subscriber.
type DomainEvent interface {
	OccurredAt() time.Time
}

// MessageAppended is emitted exactly once per durable store append.
type MessageAppended struct {
	Message domain.Message
}

func (e MessageAppended) OccurredAt() time.Time {
	return e.Message.CreatedAt
}

// BacklogReplayed carries the full history, sent once at attach time.
type BacklogReplayed struct {
	Messages []domain.Message
	At       time.Time
}

func (e BacklogReplayed) OccurredAt() time.Time {
	return e.At
}
