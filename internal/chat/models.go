package chat

import (
	"time"

	"converse/internal/user"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Conversation struct {
	ID           string           `json:"id"`
	Name         string           `json:"name,omitempty"`
	Type         ConversationType `json:"type"`
	CreatedAt    time.Time        `json:"created_at"`
	Participants []*user.User     `json:"participants,omitempty"`
}

// ConversationSummary is one row of a user's conversation listing.
type ConversationSummary struct {
	Conversation
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageAt   time.Time `json:"last_message_at,omitempty"`
	LastMessageFrom string    `json:"last_message_from,omitempty"`
	UnreadCount     int       `json:"unread_count"`
}

// MessageStatus is the delivery lifecycle state of a message. Ordering
// matters: a status may only ever advance, never regress.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

func (s MessageStatus) Rank() int {
	return statusRank[s]
}

func (s MessageStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	SenderName     string        `json:"sender_name,omitempty"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

type CreateConversationInput struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	ParticipantIDs []string `json:"participant_ids"`
}
