package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/repositories"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub pushes newly appended messages to every live subscriber.
//
// Attach and Publish share one mutex: the append and its fan-out form
// one atomic step, so a subscriber either sees a message inside its
// backlog replay or as a live push, never both and never neither, and
// delivery order always equals id order. Delivery per subscriber is
// at-most-once; a sink that errors out is unregistered on the spot and
// no retry occurs.
type Hub struct {
	mu          sync.Mutex
	log         *slog.Logger
	registry    contract.IRegistry
	store       repositories.IMessageRepository
	sinkTimeout time.Duration
}

func NewHub(log *slog.Logger, registry contract.IRegistry,
	store repositories.IMessageRepository, sinkTimeout time.Duration) *Hub {
	return &Hub{
		log:         log,
		registry:    registry,
		store:       store,
		sinkTimeout: sinkTimeout,
	}
}

// Attach registers a connection and replays the full backlog once.
// An unreadable store is logged and treated as empty so that a disk
// issue never blocks new subscribers.
func (h *Hub) Attach(ctx context.Context, connectionID string, sink contract.EventSink) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	messages, err := h.store.ReadAll()
	if err != nil {
		h.log.Error("Backlog read failed, replaying empty history", "error", err)
		messages = nil
	}
	var cursor uint64
	if len(messages) > 0 {
		cursor = messages[len(messages)-1].ID
	}
	h.registry.Register(connectionID, cursor, sink)

	replayCtx, cancel := context.WithTimeout(ctx, h.sinkTimeout)
	defer cancel()
	if err := sink.Consume(replayCtx, event.BacklogReplayed{Messages: messages, At: time.Now().UTC()}); err != nil {
		h.registry.Unregister(connectionID)
		return err
	}
	return nil
}

// Detach removes a connection from the registry.
func (h *Hub) Detach(connectionID string) {
	h.registry.Unregister(connectionID)
}

// Publish appends the message and fans it out under one lock.
// Holding the mutex across both steps means no attach can slide in
// between them, and two concurrent publishes cannot invert delivery
// order relative to their ids. The message is durable before any
// subscriber sees it; on append failure nothing is delivered.
func (h *Hub) Publish(msg domain.Message) (domain.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, err := h.store.Append(msg)
	if err != nil {
		return domain.Message{}, err
	}
	msg.ID = id
	h.fanout(msg)
	return msg, nil
}

// fanout delivers to the current subscribers, caller holds h.mu.
// Sinks whose join cursor already covers the message id are skipped:
// their backlog replay has delivered it. Failure on one sink only
// drops that sink.
func (h *Hub) fanout(msg domain.Message) {
	for connectionID, sink := range h.registry.Snapshot() {
		if cursor, ok := h.registry.Cursor(connectionID); ok && msg.ID <= cursor {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.sinkTimeout)
		err := sink.Consume(ctx, event.MessageAppended{Message: msg})
		cancel()
		if err != nil {
			h.log.Warn("Dropping subscriber after failed delivery",
				"connection_id", connectionID,
				"message_id", msg.ID,
				"error", err)
			h.registry.Unregister(connectionID)
		}
	}
}
