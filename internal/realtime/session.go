package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"converse/infrastructure"
)

// session runs one connection's inbound loop. Events are read and
// dispatched sequentially, so one client's own sequence is never
// reordered; concurrency across clients comes from one session
// goroutine per connection.
type session struct {
	hub  *Hub
	conn *Conn

	closeOnce sync.Once
}

func (s *session) readLoop() {
	defer s.disconnect()
	for {
		_, data, err := s.conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError(EventError, "malformed frame")
			continue
		}
		s.dispatch(frame)
	}
}

func (s *session) disconnect() {
	s.closeOnce.Do(func() {
		s.hub.unregister(s.conn)
	})
}

// dispatch handles a single inbound event. Failures are recovered at
// event granularity: one bad event never terminates the connection.
func (s *session) dispatch(frame Frame) {
	ctx := context.Background()
	user := s.conn.User()

	switch frame.Event {
	case EventJoinConversation:
		var p conversationPayload
		if !s.decode(frame, &p) || p.ConversationID == "" {
			s.sendError(EventError, "conversationId required")
			return
		}
		if err := s.hub.rooms.Join(ctx, s.conn, p.ConversationID); err != nil {
			if errors.Is(err, infrastructure.ErrNotAuthorized) {
				s.sendError(EventError, "not authorized to join this conversation")
			} else {
				s.logEventError(frame.Event, p.ConversationID, err)
				s.sendError(EventError, "failed to join conversation")
			}
			return
		}
		s.hub.log.Debug("joined conversation",
			zap.String("user_id", user.ID),
			zap.String("conversation_id", p.ConversationID))

	case EventLeaveConversation:
		var p conversationPayload
		if !s.decode(frame, &p) || p.ConversationID == "" {
			s.sendError(EventError, "conversationId required")
			return
		}
		s.hub.rooms.Leave(s.conn, p.ConversationID)

	case EventSendMessage:
		var p sendMessagePayload
		if !s.decode(frame, &p) || p.ConversationID == "" {
			s.sendError(EventMessageError, "conversationId required")
			return
		}
		if err := s.hub.delivery.Send(ctx, s.conn, p.ConversationID, p.Content); err != nil {
			if errors.Is(err, infrastructure.ErrEmptyContent) {
				s.sendError(EventMessageError, "message content must not be empty")
			} else {
				s.logEventError(frame.Event, p.ConversationID, err)
				s.sendError(EventMessageError, "failed to send message")
			}
		}

	case EventMessageDelivered:
		s.handleStatusUpdate(ctx, frame, s.hub.delivery.MarkDelivered)

	case EventMessageRead:
		s.handleStatusUpdate(ctx, frame, s.hub.delivery.MarkRead)

	case EventTypingStart:
		s.broadcastTyping(frame, EventUserTyping)

	case EventTypingStop:
		s.broadcastTyping(frame, EventUserStoppedTyping)

	default:
		s.sendError(EventError, "unknown event: "+frame.Event)
	}
}

func (s *session) handleStatusUpdate(ctx context.Context, frame Frame, apply func(context.Context, Identity, string) error) {
	var p messageIDPayload
	if !s.decode(frame, &p) || p.MessageID == "" {
		s.sendError(EventError, "messageId required")
		return
	}
	if err := apply(ctx, s.conn.User(), p.MessageID); err != nil {
		if errors.Is(err, infrastructure.ErrNotAuthorized) {
			s.sendError(EventError, "not authorized to update this message")
		} else {
			s.logEventError(frame.Event, p.MessageID, err)
			s.sendError(EventMessageError, "failed to update message status")
		}
	}
}

// Typing indicators are pure broadcasts: no persistence, no status
// computation, and the origin never hears its own signal.
func (s *session) broadcastTyping(frame Frame, outEvent string) {
	var p conversationPayload
	if !s.decode(frame, &p) || p.ConversationID == "" {
		s.sendError(EventError, "conversationId required")
		return
	}
	out := mustFrame(outEvent, typingPayload{
		UserID:         s.conn.User().ID,
		ConversationID: p.ConversationID,
	})
	s.hub.rooms.Broadcast(p.ConversationID, out, s.conn)
}

func (s *session) decode(frame Frame, v interface{}) bool {
	if len(frame.Data) == 0 {
		return false
	}
	return json.Unmarshal(frame.Data, v) == nil
}

func (s *session) sendError(event, message string) {
	s.conn.enqueue(mustFrame(event, errorPayload{Message: message}))
}

func (s *session) logEventError(event, subject string, err error) {
	s.hub.log.Warn("event failed",
		zap.String("event", event),
		zap.String("user_id", s.conn.User().ID),
		zap.String("subject", subject),
		zap.Error(err))
}
