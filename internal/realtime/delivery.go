package realtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"converse/infrastructure"
	"converse/internal/chat"
	"converse/internal/metrics"
)

// MessageStore is the slice of the membership store the delivery state
// machine needs.
type MessageStore interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	CreateMessage(ctx context.Context, m *chat.Message) error
	GetMessage(ctx context.Context, messageID string) (*chat.Message, error)
	AdvanceMessageStatus(ctx context.Context, messageID string, status chat.MessageStatus) (bool, error)
}

// Delivery drives the sent → delivered → read lifecycle. Status is
// always persisted before any frame announcing it is enqueued.
type Delivery struct {
	store    MessageStore
	presence *Registry
	rooms    *Router
	log      *zap.Logger
}

func NewDelivery(store MessageStore, presence *Registry, rooms *Router, log *zap.Logger) *Delivery {
	return &Delivery{store: store, presence: presence, rooms: rooms, log: log}
}

// Send persists a new message, computes its initial status from
// current presence, acks the sender privately, then broadcasts the
// full message to the room. "delivered" here means a recipient's
// process was reachable at send time, not confirmed receipt.
func (d *Delivery) Send(ctx context.Context, sender *Conn, conversationID, content string) error {
	if strings.TrimSpace(content) == "" {
		return infrastructure.ErrEmptyContent
	}

	msg := &chat.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       sender.User().ID,
		SenderName:     sender.User().Name,
		Content:        content,
		Status:         chat.StatusSent,
		CreatedAt:      time.Now().UTC(),
	}
	if err := d.store.CreateMessage(ctx, msg); err != nil {
		return err
	}
	metrics.MessagesSent.Inc()

	participants, err := d.store.ParticipantIDs(ctx, conversationID)
	if err != nil {
		// The message is durable; announce it as sent rather than
		// failing the whole event.
		d.log.Warn("participant lookup failed after send",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		participants = nil
	}

	recipientOnline := false
	for _, uid := range participants {
		if uid != msg.SenderID && d.presence.IsOnline(uid) {
			recipientOnline = true
			break
		}
	}

	if recipientOnline {
		// Persist before announcing: the broadcast must never carry a
		// status the store does not hold.
		changed, err := d.store.AdvanceMessageStatus(ctx, msg.ID, chat.StatusDelivered)
		if err != nil {
			d.log.Warn("failed to advance status to delivered",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		} else if changed {
			msg.Status = chat.StatusDelivered
			metrics.StatusUpdates.WithLabelValues(string(chat.StatusDelivered)).Inc()
		}
	}

	sender.enqueue(mustFrame(EventMessageSent, messageSentPayload{
		MessageID: msg.ID,
		Status:    string(msg.Status),
	}))

	// The sender receives its own message through the room broadcast
	// too; that echo is distinct from the private ack above.
	d.rooms.Broadcast(conversationID, mustFrame(EventNewMessage, newMessagePayload(msg)), nil)
	return nil
}

// MarkDelivered advances a message to delivered unless it is already
// read. A missing message is a logged no-op, not an error.
func (d *Delivery) MarkDelivered(ctx context.Context, caller Identity, messageID string) error {
	return d.advance(ctx, caller, messageID, chat.StatusDelivered)
}

// MarkRead advances a message to its terminal state.
func (d *Delivery) MarkRead(ctx context.Context, caller Identity, messageID string) error {
	return d.advance(ctx, caller, messageID, chat.StatusRead)
}

func (d *Delivery) advance(ctx context.Context, caller Identity, messageID string, status chat.MessageStatus) error {
	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, infrastructure.ErrMessageNotFound) {
			d.log.Info("status update for unknown message",
				zap.String("message_id", messageID),
				zap.String("user_id", caller.ID),
				zap.String("status", string(status)))
			return nil
		}
		return err
	}

	ok, err := d.store.IsParticipant(ctx, msg.ConversationID, caller.ID)
	if err != nil {
		return err
	}
	if !ok {
		return infrastructure.ErrNotAuthorized
	}

	changed, err := d.store.AdvanceMessageStatus(ctx, messageID, status)
	if err != nil {
		return err
	}
	if !changed {
		// Already at or past the requested status; the monotonic rule
		// makes this a silent no-op.
		d.log.Debug("status update ignored",
			zap.String("message_id", messageID),
			zap.String("requested", string(status)),
			zap.String("current", string(msg.Status)))
		return nil
	}
	metrics.StatusUpdates.WithLabelValues(string(status)).Inc()

	// Private notification to every connection of the sender, if any.
	frame := mustFrame(EventMessageStatus, messageStatusPayload{
		MessageID: messageID,
		Status:    string(status),
	})
	conns := d.presence.ConnectionsFor(msg.SenderID)
	if len(conns) == 0 {
		d.log.Debug("sender offline for status notification",
			zap.String("message_id", messageID),
			zap.String("sender_id", msg.SenderID))
		return nil
	}
	for _, c := range conns {
		c.enqueue(frame)
	}
	return nil
}
