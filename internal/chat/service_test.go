package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"converse/infrastructure"
)

type fakeRepo struct {
	Repository

	participants  map[string][]string
	messages      []*Message
	created       *Conversation
	createdWith   []string
	markReadCalls int
}

func (f *fakeRepo) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	for _, id := range f.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CreateConversation(_ context.Context, conv *Conversation, participantIDs []string) error {
	f.created = conv
	f.createdWith = participantIDs
	return nil
}

func (f *fakeRepo) GetConversation(_ context.Context, conversationID string) (*Conversation, error) {
	if f.created != nil && f.created.ID == conversationID {
		return f.created, nil
	}
	return nil, infrastructure.ErrConversationNotFound
}

func (f *fakeRepo) ListMessages(_ context.Context, _ string, limit int, _ time.Time) ([]*Message, error) {
	if limit < len(f.messages) {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func (f *fakeRepo) MarkConversationRead(_ context.Context, _, _ string) (int64, error) {
	f.markReadCalls++
	return int64(len(f.messages)), nil
}

func newChatService(repo *fakeRepo) *Service {
	return NewService(repo, zap.NewNop())
}

func TestCreateConversationValidation(t *testing.T) {
	svc := newChatService(&fakeRepo{})

	cases := []struct {
		name  string
		input CreateConversationInput
	}{
		{"unknown type", CreateConversationInput{Type: "broadcast", ParticipantIDs: []string{"b"}}},
		{"no participants", CreateConversationInput{Type: "group"}},
		{"direct with two others", CreateConversationInput{Type: "direct", ParticipantIDs: []string{"b", "c"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateConversation(context.Background(), "a", tc.input)
			assert.ErrorIs(t, err, infrastructure.ErrInvalidInput)
		})
	}
}

func TestCreateConversationIncludesCreatorAndDedupes(t *testing.T) {
	repo := &fakeRepo{}
	svc := newChatService(repo)

	conv, err := svc.CreateConversation(context.Background(), "a", CreateConversationInput{
		Type:           "group",
		Name:           "team",
		ParticipantIDs: []string{"b", "a", "b", "c"},
	})
	require.NoError(t, err)
	require.NotNil(t, conv)

	assert.Equal(t, []string{"a", "b", "c"}, repo.createdWith)
	assert.Equal(t, ConversationGroup, repo.created.Type)
	assert.Equal(t, "team", repo.created.Name)
}

func TestGetMessagesRequiresParticipation(t *testing.T) {
	repo := &fakeRepo{participants: map[string][]string{"c1": {"a"}}}
	svc := newChatService(repo)

	_, err := svc.GetMessages(context.Background(), "c1", "outsider", 50, time.Time{})
	assert.ErrorIs(t, err, infrastructure.ErrNotAuthorized)
	assert.Zero(t, repo.markReadCalls)
}

func TestGetMessagesMarksConversationRead(t *testing.T) {
	repo := &fakeRepo{
		participants: map[string][]string{"c1": {"a", "b"}},
		messages: []*Message{
			{ID: "m1", ConversationID: "c1", SenderID: "b", Content: "hi", Status: StatusDelivered},
		},
	}
	svc := newChatService(repo)

	msgs, err := svc.GetMessages(context.Background(), "c1", "a", 0, time.Time{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 1, repo.markReadCalls, "fetching history marks the page read")
}

func TestDeleteConversationRequiresParticipation(t *testing.T) {
	repo := &fakeRepo{participants: map[string][]string{"c1": {"a"}}}
	svc := newChatService(repo)

	err := svc.DeleteConversation(context.Background(), "c1", "outsider")
	assert.ErrorIs(t, err, infrastructure.ErrNotAuthorized)
}

func TestMessageStatusOrdering(t *testing.T) {
	assert.Less(t, StatusSent.Rank(), StatusDelivered.Rank())
	assert.Less(t, StatusDelivered.Rank(), StatusRead.Rank())
	assert.True(t, StatusRead.Valid())
	assert.False(t, MessageStatus("seen").Valid())
}
