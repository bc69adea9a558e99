package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming on the interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives hub pushes for one live connection.
// Consume must never block indefinitely; a sink that cannot keep up
// returns an error and gets unregistered by the hub.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	Register(connectionID string, cursor uint64, sink EventSink)
	Unregister(connectionID string)
	Snapshot() map[string]EventSink
	Cursor(connectionID string) (uint64, bool)
	Len() int
}

// IForwarder hands locally originated messages to the peer relay loop.
type IForwarder interface {
	Enqueue(msg domain.Message)
}
