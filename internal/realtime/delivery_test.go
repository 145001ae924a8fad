package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"converse/infrastructure"
	"converse/internal/chat"
)

type fakeStore struct {
	mu           sync.Mutex
	participants map[string][]string
	messages     map[string]*chat.Message
	createErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: make(map[string][]string),
		messages:     make(map[string]*chat.Message),
	}
}

func (f *fakeStore) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ParticipantIDs(_ context.Context, conversationID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.participants[conversationID]...), nil
}

func (f *fakeStore) CreateMessage(_ context.Context, m *chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copied := *m
	f.messages[m.ID] = &copied
	return nil
}

func (f *fakeStore) GetMessage(_ context.Context, messageID string) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return nil, infrastructure.ErrMessageNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) AdvanceMessageStatus(_ context.Context, messageID string, status chat.MessageStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return false, nil
	}
	if m.Status.Rank() >= status.Rank() {
		return false, nil
	}
	m.Status = status
	return true, nil
}

func (f *fakeStore) status(messageID string) chat.MessageStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[messageID]; ok {
		return m.Status
	}
	return ""
}

type deliveryFixture struct {
	store    *fakeStore
	presence *Registry
	rooms    *Router
	delivery *Delivery
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()
	store := newFakeStore()
	presence := NewRegistry()
	rooms := NewRouter(store)
	return &deliveryFixture{
		store:    store,
		presence: presence,
		rooms:    rooms,
		delivery: NewDelivery(store, presence, rooms, zap.NewNop()),
	}
}

// connect registers and joins the connection like the lifecycle would.
func (fx *deliveryFixture) connect(t *testing.T, c *Conn, conversationID string) {
	t.Helper()
	fx.presence.Register(c.User().ID, c)
	require.NoError(t, fx.rooms.Join(context.Background(), c, conversationID))
}

func decodePayload(t *testing.T, f Frame, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Data, v))
}

func TestSendRejectsEmptyContent(t *testing.T) {
	fx := newDeliveryFixture(t)
	fx.store.participants["conv7"] = []string{"a", "b"}
	alice := testConn("a", "alice")
	fx.connect(t, alice, "conv7")

	err := fx.delivery.Send(context.Background(), alice, "conv7", "   \n\t")
	assert.ErrorIs(t, err, infrastructure.ErrEmptyContent)
	assert.Empty(t, fx.store.messages)
	assert.Empty(t, alice.out)
}

func TestSendAllRecipientsOffline(t *testing.T) {
	fx := newDeliveryFixture(t)
	fx.store.participants["conv7"] = []string{"a", "b"}
	alice := testConn("a", "alice")
	fx.connect(t, alice, "conv7")

	require.NoError(t, fx.delivery.Send(context.Background(), alice, "conv7", "hi"))

	// Private ack first.
	ack := drainFrame(t, alice)
	assert.Equal(t, EventMessageSent, ack.Event)
	var ackPayload messageSentPayload
	decodePayload(t, ack, &ackPayload)
	assert.Equal(t, "sent", ackPayload.Status)

	// Then the room echo, also carrying sent.
	echo := drainFrame(t, alice)
	assert.Equal(t, EventNewMessage, echo.Event)
	var msgPayload messagePayload
	decodePayload(t, echo, &msgPayload)
	assert.Equal(t, "sent", msgPayload.Status)
	assert.Equal(t, "alice", msgPayload.SenderName)

	assert.Equal(t, chat.StatusSent, fx.store.status(ackPayload.MessageID))
}

func TestSendRecipientOnlineMarksDelivered(t *testing.T) {
	fx := newDeliveryFixture(t)
	fx.store.participants["conv7"] = []string{"a", "b"}
	alice := testConn("a", "alice")
	bob := testConn("b", "bob")
	fx.connect(t, alice, "conv7")
	fx.connect(t, bob, "conv7")

	require.NoError(t, fx.delivery.Send(context.Background(), alice, "conv7", "hi"))

	ack := drainFrame(t, alice)
	var ackPayload messageSentPayload
	decodePayload(t, ack, &ackPayload)
	assert.Equal(t, "delivered", ackPayload.Status)

	// The stored status reached delivered before any frame was built.
	assert.Equal(t, chat.StatusDelivered, fx.store.status(ackPayload.MessageID))

	broadcast := drainFrame(t, bob)
	assert.Equal(t, EventNewMessage, broadcast.Event)
	var msgPayload messagePayload
	decodePayload(t, broadcast, &msgPayload)
	assert.Equal(t, "delivered", msgPayload.Status)
	assert.Equal(t, "a", msgPayload.SenderID)
}

func TestSendPersistErrorEmitsNothing(t *testing.T) {
	fx := newDeliveryFixture(t)
	fx.store.participants["conv7"] = []string{"a", "b"}
	fx.store.createErr = errors.New("store down")
	alice := testConn("a", "alice")
	fx.connect(t, alice, "conv7")

	err := fx.delivery.Send(context.Background(), alice, "conv7", "hi")
	require.Error(t, err)
	assert.Empty(t, alice.out, "no broadcast for a message that failed to persist")
}

func TestMarkReadNotifiesSenderPrivately(t *testing.T) {
	fx := newDeliveryFixture(t)
	fx.store.participants["conv7"] = []string{"a", "b"}
	alice := testConn("a", "alice")
	bob := testConn("b", "bob")
	fx.connect(t, alice, "conv7")
	fx.connect(t, bob, "conv7")

	require.NoError(t, fx.delivery.Send(context.Background(), alice, "conv7", "hi"))
	var ackPayload messageSentPayload
	decodePayload(t, drainFrame(t, alice), &ackPayload)
	drainFrame(t, alice) // room echo
	drainFrame(t, bob)   // broadcast

	require.NoError(t, fx.delivery.MarkRead(context.Background(), bob.User(), ackPayload.MessageID))
	assert.Equal(t, chat.StatusRead, fx.store.status(ackPayload.MessageID))

	status := drainFrame(t, alice)
	assert.Equal(t, EventMessageStatus, status.Event)
	var statusPayload messageStatusPayload
	decodePayload(t, status, &statusPayload)
	assert.Equal(t, "read", statusPayload.Status)

	// Read receipts are private to the sender, not room broadcasts.
	assert.Empty(t, bob.out)
}

func TestMarkDeliveredNeverRegressesRead(t *testing.T) {
	fx := newDeliveryFixture(t)
	fx.store.participants["conv7"] = []string{"a", "b"}
	alice := testConn("a", "alice")
	bob := testConn("b", "bob")
	fx.connect(t, alice, "conv7")
	fx.connect(t, bob, "conv7")

	require.NoError(t, fx.delivery.Send(context.Background(), alice, "conv7", "hi"))
	var ackPayload messageSentPayload
	decodePayload(t, drainFrame(t, alice), &ackPayload)
	drainFrame(t, alice)
	drainFrame(t, bob)

	require.NoError(t, fx.delivery.MarkRead(context.Background(), bob.User(), ackPayload.MessageID))
	drainFrame(t, alice)

	// A late delivered ack must not move the message backward and must
	// stay silent.
	require.NoError(t, fx.delivery.MarkDelivered(context.Background(), bob.User(), ackPayload.MessageID))
	assert.Equal(t, chat.StatusRead, fx.store.status(ackPayload.MessageID))
	assert.Empty(t, alice.out)
}

func TestMarkDeliveredUnknownMessageIsNoOp(t *testing.T) {
	fx := newDeliveryFixture(t)
	bob := testConn("b", "bob")
	fx.presence.Register("b", bob)

	assert.NoError(t, fx.delivery.MarkDelivered(context.Background(), bob.User(), "nope"))
	assert.Empty(t, bob.out)
}

func TestMarkReadOutsideConversationNotAuthorized(t *testing.T) {
	fx := newDeliveryFixture(t)
	fx.store.participants["conv7"] = []string{"a", "b"}
	alice := testConn("a", "alice")
	mallory := testConn("m", "mallory")
	fx.connect(t, alice, "conv7")
	fx.presence.Register("m", mallory)

	require.NoError(t, fx.delivery.Send(context.Background(), alice, "conv7", "hi"))
	var ackPayload messageSentPayload
	decodePayload(t, drainFrame(t, alice), &ackPayload)

	err := fx.delivery.MarkRead(context.Background(), mallory.User(), ackPayload.MessageID)
	assert.ErrorIs(t, err, infrastructure.ErrNotAuthorized)
	assert.Equal(t, chat.StatusSent, fx.store.status(ackPayload.MessageID))
}

func TestStatusMonotonicUnderRace(t *testing.T) {
	fx := newDeliveryFixture(t)
	fx.store.participants["conv7"] = []string{"a", "b"}
	alice := testConn("a", "alice")
	bob := testConn("b", "bob")
	fx.connect(t, alice, "conv7")
	fx.presence.Register("b", bob)

	require.NoError(t, fx.delivery.Send(context.Background(), alice, "conv7", "hi"))
	var ackPayload messageSentPayload
	decodePayload(t, drainFrame(t, alice), &ackPayload)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = fx.delivery.MarkDelivered(context.Background(), bob.User(), ackPayload.MessageID)
		}()
		go func() {
			defer wg.Done()
			_ = fx.delivery.MarkRead(context.Background(), bob.User(), ackPayload.MessageID)
		}()
	}
	wg.Wait()

	assert.Equal(t, chat.StatusRead, fx.store.status(ackPayload.MessageID))
}
