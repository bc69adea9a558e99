package repositories

import (
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const messagePrefix = "msg:"

type IMessageRepository interface {
	Append(msg domain.Message) (uint64, error)
	ReadAll() ([]domain.Message, error)
	ReadFrom(cursor uint64) ([]domain.Message, error)
	Len() uint64
}

// MessageRepository is the append-only message log of one node.
// Identifiers are assigned here, under the append mutex, so id order,
// on-disk key order and broadcast order are all the same total order.
type MessageRepository struct {
	db   *badger.DB
	log  *slog.Logger
	mu   sync.Mutex
	last uint64 // id of the most recent append, 0 when empty
}

// NewMessageRepository recovers the last assigned id from disk so that
// ids keep increasing across restarts without gaps.
func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	repo := &MessageRepository{db: db, log: log}
	err := db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the highest possible key, then step back onto the
		// last real message (19 digits is the zero-padded id width).
		seekKey := []byte(messagePrefix + "9999999999999999999")
		it.Seek(seekKey)
		if !it.ValidForPrefix([]byte(messagePrefix)) {
			return nil
		}
		id, err := parseMessageKey(it.Item().Key())
		if err != nil {
			return err
		}
		repo.last = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreRead, err)
	}
	log.Debug("Message log recovered", "last_id", repo.last)
	return repo, nil
}

// Append persists a message and returns its id.
// The write is committed (and fsynced when the DB runs with SyncWrites)
// before returning, so a successful append survives a process restart.
// On failure the id is not consumed and nothing downstream may observe
// the message.
func (r *MessageRepository) Append(msg domain.Message) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.last + 1
	msg.ID = id
	bytes, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrStoreWrite, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(messageKey(id)), bytes)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrStoreWrite, err)
	}
	r.last = id
	return id, nil
}

// ReadAll returns every message in append order.
func (r *MessageRepository) ReadAll() ([]domain.Message, error) {
	return r.readFromKey(messagePrefix)
}

// ReadFrom returns messages whose id is at or after cursor, in append
// order. The zero-padded keys make a plain seek land on the right spot.
func (r *MessageRepository) ReadFrom(cursor uint64) ([]domain.Message, error) {
	return r.readFromKey(messageKey(cursor))
}

// Len reports how many messages the store holds. Ids are gap-free, so
// the count is simply the last assigned id.
func (r *MessageRepository) Len() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *MessageRepository) readFromKey(seek string) ([]domain.Message, error) {
	var raw [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(messagePrefix)
		for it.Seek([]byte(seek)); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreRead, err)
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, b := range raw {
		var dm diskMessage
		if err = json.Unmarshal(b, &dm); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreRead, err)
		}
		messages = append(messages, toMessage(dm))
	}
	return messages, nil
}

// messageKey formats "msg:{id}" with 19-digit zero padding so that the
// lexicographical key order matches the numeric id order.
func messageKey(id uint64) string {
	return fmt.Sprintf("%s%019d", messagePrefix, id)
}

func parseMessageKey(key []byte) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(strings.TrimPrefix(string(key), messagePrefix), "%d", &id)
	return id, err
}

type diskMessage struct {
	ID        uint64    `json:"id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Origin    string    `json:"origin"`
	Lang      string    `json:"lang,omitempty"`
}

func fromMessage(msg domain.Message) diskMessage {
	return diskMessage{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt.UTC(),
		Origin:    string(msg.Origin),
		Lang:      msg.Lang,
	}
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:        dm.ID,
		Sender:    dm.Sender,
		Body:      dm.Body,
		CreatedAt: dm.CreatedAt.UTC(),
		Origin:    domain.Origin(dm.Origin),
		Lang:      dm.Lang,
	}
}
