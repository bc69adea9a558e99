// Package domain contains core concepts of the relay chat system.
// This file defines Message and its origin rules.
// Messages are immutable once appended to the store.
package domain

import "time"

// Origin distinguishes messages produced by local clients from messages
// received through the peer relay endpoint.
type Origin string

const (
	// OriginLocal marks a message submitted by a client of this node.
	OriginLocal Origin = "local"
	// OriginRelayed marks a message received from the paired node.
	OriginRelayed Origin = "relayed"
)

// MaxBodyRunes bounds the content of a single message.
const MaxBodyRunes = 500

// Message represents an immutable chat entry.
type Message struct {
	ID        uint64 // store-assigned, strictly increasing on this node
	Sender    string
	Body      string
	CreatedAt time.Time // assigned by this node's ingestion handler, UTC
	Origin    Origin
	Lang      string // ISO 639-1 code detected at ingestion, informational
}

// Forwardable reports whether the message may be relayed to the peer.
// Relayed messages are never forwarded again, which breaks the cycle
// between the two paired nodes.
func (m Message) Forwardable() bool {
	return m.Origin == OriginLocal
}
