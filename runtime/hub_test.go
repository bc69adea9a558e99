package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) snapshot() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

type brokenSink struct{}

func (brokenSink) Consume(context.Context, event.DomainEvent) error {
	return apperrors.ErrSinkBackpressure
}

func newTestHub(t *testing.T) (*Hub, *Registry, *repositories.MessageRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := repositories.NewMessageRepository(db, slog.Default())
	require.NoError(t, err)

	registry := NewRegistry()
	return NewHub(slog.Default(), registry, store, time.Second), registry, store
}

func appendMessage(t *testing.T, store *repositories.MessageRepository, body string) domain.Message {
	t.Helper()
	msg := domain.Message{Sender: "Alice", Body: body, CreatedAt: time.Now().UTC(), Origin: domain.OriginLocal}
	id, err := store.Append(msg)
	require.NoError(t, err)
	msg.ID = id
	return msg
}

func publishMessage(t *testing.T, hub *Hub, body string) domain.Message {
	t.Helper()
	msg, err := hub.Publish(domain.Message{
		Sender: "Alice", Body: body, CreatedAt: time.Now().UTC(), Origin: domain.OriginLocal,
	})
	require.NoError(t, err)
	return msg
}

func Test_Attach_Replays_Backlog_Once(t *testing.T) {
	req := require.New(t)
	hub, registry, _ := newTestHub(t)

	publishMessage(t, hub, "m1")
	publishMessage(t, hub, "m2")

	sink := &recordingSink{}
	req.NoError(hub.Attach(context.Background(), "conn-1", sink))
	req.Equal(1, registry.Len())

	events := sink.snapshot()
	req.Len(events, 1)
	backlog, ok := events[0].(event.BacklogReplayed)
	req.True(ok)
	req.Len(backlog.Messages, 2)
	req.Equal("m1", backlog.Messages[0].Body)
	req.Equal("m2", backlog.Messages[1].Body)
}

func Test_Publish_Delivers_In_Append_Order(t *testing.T) {
	req := require.New(t)
	hub, _, store := newTestHub(t)

	sink := &recordingSink{}
	req.NoError(hub.Attach(context.Background(), "conn-1", sink))

	publishMessage(t, hub, "x")
	publishMessage(t, hub, "y")
	req.Equal(uint64(2), store.Len())

	events := sink.snapshot()
	req.Len(events, 3) // backlog + two live pushes
	pushA, ok := events[1].(event.MessageAppended)
	req.True(ok)
	pushB, ok := events[2].(event.MessageAppended)
	req.True(ok)
	req.Equal("x", pushA.Message.Body)
	req.Equal("y", pushB.Message.Body)
}

func Test_Backlog_Message_Is_Never_Pushed_Again(t *testing.T) {
	req := require.New(t)
	hub, _, store := newTestHub(t)

	// The message hits the store before the subscriber attaches, so the
	// attach replays it inside the backlog. A fan-out of the same message
	// afterwards must not deliver it a second time.
	msg := appendMessage(t, store, "seen in backlog")

	sink := &recordingSink{}
	req.NoError(hub.Attach(context.Background(), "conn-1", sink))
	hub.fanout(msg)

	events := sink.snapshot()
	req.Len(events, 1)
	backlog, ok := events[0].(event.BacklogReplayed)
	req.True(ok)
	req.Len(backlog.Messages, 1)
	req.Equal("seen in backlog", backlog.Messages[0].Body)

	// Later messages still reach the subscriber as live pushes.
	publishMessage(t, hub, "after attach")
	events = sink.snapshot()
	req.Len(events, 2)
	push, ok := events[1].(event.MessageAppended)
	req.True(ok)
	req.Equal("after attach", push.Message.Body)
}

func Test_Concurrent_Publishes_Deliver_In_Id_Order(t *testing.T) {
	req := require.New(t)
	hub, _, _ := newTestHub(t)

	sink := &recordingSink{}
	req.NoError(hub.Attach(context.Background(), "conn-1", sink))

	const writers, perWriter = 4, 5
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := hub.Publish(domain.Message{
					Sender: "Alice", Body: "race", CreatedAt: time.Now().UTC(), Origin: domain.OriginLocal,
				})
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	events := sink.snapshot()
	req.Len(events, 1+writers*perWriter) // backlog + every live push
	var lastID uint64
	for _, e := range events[1:] {
		push, ok := e.(event.MessageAppended)
		req.True(ok)
		req.Greater(push.Message.ID, lastID)
		lastID = push.Message.ID
	}
}

func Test_Failing_Subscriber_Is_Dropped_Others_Unaffected(t *testing.T) {
	req := require.New(t)
	hub, registry, _ := newTestHub(t)

	healthy := &recordingSink{}
	req.NoError(hub.Attach(context.Background(), "healthy", healthy))
	registry.Register("broken", 0, brokenSink{})
	req.Equal(2, registry.Len())

	publishMessage(t, hub, "still delivered")

	req.Equal(1, registry.Len())
	_, stillThere := registry.Cursor("healthy")
	req.True(stillThere)

	events := healthy.snapshot()
	push, ok := events[len(events)-1].(event.MessageAppended)
	req.True(ok)
	req.Equal("still delivered", push.Message.Body)
}

func Test_Attach_With_Failing_Sink_Does_Not_Leak(t *testing.T) {
	req := require.New(t)
	hub, registry, store := newTestHub(t)

	appendMessage(t, store, "m1")
	err := hub.Attach(context.Background(), "broken", brokenSink{})
	req.Error(err)
	req.Equal(0, registry.Len())
}
