// Package api exposes the node's HTTP surface: snapshot reads, local
// ingestion, peer relay ingestion, the live event stream and health.
package api

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Server struct {
	log                  *slog.Logger
	chatService          services.IChatService
	monitoring           *observability.Manager
	store                repositories.IMessageRepository
	registry             contract.IRegistry
	connectionBufferSize int
	searchLimit          int
}

func NewServer(log *slog.Logger, chatService services.IChatService,
	monitoring *observability.Manager, store repositories.IMessageRepository,
	registry contract.IRegistry, connectionBufferSize, searchLimit int) *Server {
	return &Server{
		log:                  log,
		chatService:          chatService,
		monitoring:           monitoring,
		store:                store,
		registry:             registry,
		connectionBufferSize: connectionBufferSize,
		searchLimit:          searchLimit,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/relay/messages", s.handleRelay)
	mux.HandleFunc("/messages/search", s.handleSearch)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// messagePayload is the wire representation shared by the snapshot, the
// search results and the stream events.
type messagePayload struct {
	ID        uint64 `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Origin    string `json:"origin"`
	Lang      string `json:"lang,omitempty"`
}

type postMessageRequest struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

type relayMessageRequest struct {
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSnapshot(w, r)
	case http.MethodPost:
		s.handleIngest(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSnapshot returns the full ordered history on every call.
// Polling clients diff or re-render on their side, by design.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	messages, err := s.chatService.Snapshot()
	if err != nil {
		s.log.Error("Snapshot read failed", "error", err)
		s.respondError(w, apperrors.MapToHTTPStatus(err), "history unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"messages": toPayloads(messages)})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.ingest(w, r, domain.PostMessageCommand{
		Sender: req.Sender,
		Body:   req.Message,
		Origin: domain.OriginLocal,
	})
}

// handleRelay is the peer-to-peer ingestion endpoint. Messages landing
// here are tagged relayed so they are never forwarded again. The peer's
// timestamp is informational only: createdAt is assigned by this node.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req relayMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.ingest(w, r, domain.PostMessageCommand{
		Sender: req.Sender,
		Body:   req.Message,
		Origin: domain.OriginRelayed,
	})
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, cmd domain.PostMessageCommand) {
	msg, err := s.chatService.Ingest(r.Context(), cmd)
	if err != nil {
		status := apperrors.MapToHTTPStatus(err)
		if status == http.StatusInternalServerError {
			s.log.Error("Ingestion failed, message not saved", "error", err)
			s.respondError(w, status, "message not saved")
			return
		}
		// Validation detail stays in the logs; the wire gets a stable
		// message rather than validator internals.
		s.log.Debug("Submission rejected", "error", err)
		s.respondError(w, status, "missing or invalid sender or message")
		return
	}
	s.respondJSON(w, http.StatusOK, successResponse{Success: true, Data: map[string]any{"id": msg.ID}})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	terms := r.URL.Query().Get("q")
	if terms == "" {
		s.respondError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	messages, err := s.chatService.Search(r.Context(), terms, s.searchLimit)
	if err != nil {
		s.log.Error("Search failed", "terms", terms, "error", err)
		s.respondError(w, http.StatusInternalServerError, "search unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"messages": toPayloads(messages)})
}

// handleStream attaches the caller as a live subscriber.
// The first frame replays the whole backlog, then one frame is pushed
// per subsequent append. The connection is unregistered on any exit
// path so the registry never leaks entries.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := NewStreamSink(s.connectionBufferSize)
	connectionID := uuid.NewString()
	if err := s.chatService.Attach(r.Context(), connectionID, sink); err != nil {
		s.log.Error("Subscriber attach failed", "connection_id", connectionID, "error", err)
		return
	}
	defer s.chatService.Detach(connectionID)

	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("Subscriber disconnected", "connection_id", connectionID)
			return
		case evt := <-sink.Events:
			if err := writeStreamEvent(w, evt); err != nil {
				s.log.Warn("Failed to push event to stream", "connection_id", connectionID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, evt event.DomainEvent) error {
	switch e := evt.(type) {
	case event.BacklogReplayed:
		data, err := json.Marshal(toPayloads(e.Messages))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: backlog\ndata: %s\n\n", data)
		return err
	case event.MessageAppended:
		data, err := json.Marshal(toPayload(e.Message))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
		return err
	default:
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.monitoring.Snapshot(s.store.Len(), s.registry.Len())
	s.respondJSON(w, http.StatusOK, snapshot)
}

func toPayloads(messages []domain.Message) []messagePayload {
	return lo.Map(messages, func(msg domain.Message, _ int) messagePayload {
		return toPayload(msg)
	})
}

func toPayload(msg domain.Message) messagePayload {
	return messagePayload{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Message:   msg.Body,
		Timestamp: msg.CreatedAt.Format(time.RFC3339Nano),
		Origin:    string(msg.Origin),
		Lang:      msg.Lang,
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Response encoding failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}
