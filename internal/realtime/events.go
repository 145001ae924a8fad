package realtime

import (
	"encoding/json"
	"fmt"

	"converse/internal/chat"
)

// Inbound event names.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventMessageDelivered  = "message_delivered"
	EventMessageRead       = "message_read"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
)

// Outbound event names.
const (
	EventMessageSent       = "message_sent"
	EventNewMessage        = "new_message"
	EventMessageStatus     = "message_status"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventError             = "error"
	EventMessageError      = "message_error"
)

// Frame is the envelope for every event in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type conversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type sendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type messageIDPayload struct {
	MessageID string `json:"messageId"`
}

type messageSentPayload struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type messageStatusPayload struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type typingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// messagePayload is the full message broadcast to a room, including
// the resolved sender display name.
type messagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	Content        string `json:"content"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
}

func newMessagePayload(m *chat.Message) messagePayload {
	return messagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Content:        m.Content,
		Status:         string(m.Status),
		CreatedAt:      m.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// mustFrame is for payloads built from plain structs that cannot fail
// to marshal.
func mustFrame(event string, payload interface{}) []byte {
	b, err := encodeFrame(event, payload)
	if err != nil {
		panic(err)
	}
	return b
}
