package workers

import (
	"bytes"
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const relayPath = "/relay/messages"

// ForwarderWorker relays locally originated messages to the paired node.
//
// Delivery is best effort: one POST attempt per message with a bounded
// timeout, failures are logged and the message dropped. The ingestion
// path only ever touches the buffered channel, so an unreachable peer
// never slows down or fails a local submission.
type ForwarderWorker struct {
	log      *slog.Logger
	client   *http.Client
	peerURL  string
	timeout  time.Duration
	outbound chan domain.Message
}

func NewForwarderWorker(log *slog.Logger, peerURL string, bufferSize int, timeout time.Duration) *ForwarderWorker {
	return &ForwarderWorker{
		log:      log,
		client:   &http.Client{Timeout: timeout},
		peerURL:  strings.TrimRight(peerURL, "/"),
		timeout:  timeout,
		outbound: make(chan domain.Message, bufferSize),
	}
}

// Enqueue hands a message to the forwarding loop without blocking.
// Relayed messages are refused here as a second line of defense against
// forward loops. A full buffer drops the message with a warning.
func (w *ForwarderWorker) Enqueue(msg domain.Message) {
	if !msg.Forwardable() {
		return
	}
	select {
	case w.outbound <- msg:
	default:
		w.log.Warn("Outbound buffer full, dropping relay", "message_id", msg.ID)
	}
}

func (w *ForwarderWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case msg, ok := <-w.outbound:
			if !ok {
				return nil
			}
			w.forward(ctx, msg)
		}
	}
}

type relayPayload struct {
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

func (w *ForwarderWorker) forward(ctx context.Context, msg domain.Message) {
	body, err := json.Marshal(relayPayload{
		Message:   msg.Body,
		Sender:    msg.Sender,
		Timestamp: msg.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		w.log.Error("Relay payload encoding failed", "message_id", msg.ID, "error", err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.peerURL+relayPath, bytes.NewReader(body))
	if err != nil {
		w.log.Error("Relay request build failed", "message_id", msg.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Warn("Peer unreachable, dropping message", "message_id", msg.ID,
			"error", fmt.Errorf("%w: %v", apperrors.ErrPeerUnreachable, err))
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		w.log.Warn(fmt.Sprintf("Peer refused relay with status %d", resp.StatusCode), "message_id", msg.ID)
		return
	}
	w.log.Debug("Message relayed to peer", "message_id", msg.ID)
}
