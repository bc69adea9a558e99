package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

type IChatService interface {
	Ingest(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	Snapshot() ([]domain.Message, error)
	Search(ctx context.Context, terms string, limit int) ([]domain.Message, error)
	Attach(ctx context.Context, connectionID string, sink contract.EventSink) error
	Detach(connectionID string)
}

// IBroadcaster is the hub surface the service depends on.
// Publish owns the append so that persistence and fan-out happen as one
// atomic step.
type IBroadcaster interface {
	Attach(ctx context.Context, connectionID string, sink contract.EventSink) error
	Detach(connectionID string)
	Publish(msg domain.Message) (domain.Message, error)
}

// ChatService drives a message through its whole lifecycle:
// validate, moderate, persist, broadcast, then forward when the message
// originated locally. Failures after the durable append never unwind it.
type ChatService struct {
	log       *slog.Logger
	validate  *validator.Validate
	moderator Moderator
	store     repositories.IMessageRepository
	index     repositories.ISearchIndex
	hub       IBroadcaster
	forwarder contract.IForwarder
	now       func() time.Time
}

// Moderator is the sanitization surface the service depends on.
type Moderator interface {
	Censor(original string) (string, []string)
}

func NewChatService(log *slog.Logger, moderator Moderator,
	store repositories.IMessageRepository, index repositories.ISearchIndex,
	hub IBroadcaster, forwarder contract.IForwarder) *ChatService {
	return &ChatService{
		log:       log,
		validate:  validator.New(),
		moderator: moderator,
		store:     store,
		index:     index,
		hub:       hub,
		forwarder: forwarder,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ingest accepts a message into this node.
// The timestamp is assigned here, not by the submitting client, so one
// clock rules the per-node order. Identical payloads submitted twice
// yield two distinct entries: deduplication is explicitly not performed.
func (s *ChatService) Ingest(_ context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	body, flagged := s.moderator.Censor(cmd.Body)
	langInfo := whatlanggo.Detect(body)

	msg := domain.Message{
		Sender:    cmd.Sender,
		Body:      body,
		CreatedAt: s.now(),
		Origin:    cmd.Origin,
		Lang:      langInfo.Lang.Iso6391(),
	}
	msg, err := s.hub.Publish(msg)
	if err != nil {
		return domain.Message{}, err
	}

	if len(flagged) > 0 {
		s.log.Info("Censored message content", "message_id", msg.ID, "patterns", len(flagged))
	}

	// Everything past this point is a downstream effect of an already
	// durable append: isolated, logged, never rolled back.
	if err := s.index.Index(msg.ID, msg.Sender, msg.Body); err != nil {
		s.log.Error("Search indexing failed", "message_id", msg.ID, "error", err)
	}
	if msg.Forwardable() {
		s.forwarder.Enqueue(msg)
	}
	return msg, nil
}

// Snapshot returns the full ordered history. Polling clients always get
// everything, there is no incremental diff on this path.
func (s *ChatService) Snapshot() ([]domain.Message, error) {
	return s.store.ReadAll()
}

// Search resolves matching ids from the index, then hydrates them from
// the store so results carry the same fields as the snapshot.
func (s *ChatService) Search(ctx context.Context, terms string, limit int) ([]domain.Message, error) {
	ids, err := s.index.Search(ctx, terms, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	messages, err := s.store.ReadAll()
	if err != nil {
		return nil, err
	}
	wanted := lo.SliceToMap(ids, func(id uint64) (uint64, struct{}) {
		return id, struct{}{}
	})
	return lo.Filter(messages, func(msg domain.Message, _ int) bool {
		_, ok := wanted[msg.ID]
		return ok
	}), nil
}

func (s *ChatService) Attach(ctx context.Context, connectionID string, sink contract.EventSink) error {
	return s.hub.Attach(ctx, connectionID, sink)
}

func (s *ChatService) Detach(connectionID string) {
	s.hub.Detach(connectionID)
}
