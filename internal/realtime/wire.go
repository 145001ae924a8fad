package realtime

import (
	"database/sql"

	"github.com/google/wire"

	"converse/internal/chat"
)

// ProvideRouter wires the room router against the durable membership store.
func ProvideRouter(db *sql.DB) *Router {
	return NewRouter(chat.NewPostgresRepository(db))
}

// ProvideMessageStore exposes the chat repository under the slice the
// delivery state machine depends on.
func ProvideMessageStore(db *sql.DB) MessageStore {
	return chat.NewPostgresRepository(db)
}

var Set = wire.NewSet(NewRegistry, ProvideRouter, ProvideMessageStore, NewDelivery, NewHub)
