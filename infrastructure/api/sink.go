package api

import (
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
	"context"
)

// StreamSink buffers hub pushes for one live HTTP connection.
// The stream handler owns the channel and drains it into the response.
type StreamSink struct {
	Events chan event.DomainEvent
}

func NewStreamSink(bufferSize int) *StreamSink {
	return &StreamSink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the hub. It never blocks: when the buffer is
// full the subscriber is considered too slow and the returned error
// makes the hub unregister it, protecting delivery to the others.
func (s *StreamSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return apperrors.ErrSinkBackpressure
	}
}
