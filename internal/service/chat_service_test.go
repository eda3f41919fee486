package service

import (
	"context"
	"strings"
	"testing"

	"rentonmap/internal/notifications"
	"rentonmap/internal/repository"
	"rentonmap/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type chatEnv struct {
	db     *gorm.DB
	svc    *ChatService
	events *recordingPublisher
}

func newChatEnv(t *testing.T) chatEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	events := &recordingPublisher{}
	svc := NewChatService(repository.NewChatRepository(db), repository.NewListingRepository(db), events)
	return chatEnv{db: db, svc: svc, events: events}
}

func TestChatService_Scenario(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()
	u1 := testutil.CreateUser(t, env.db, "U1")
	u2 := testutil.CreateUser(t, env.db, "U2")
	l1 := testutil.CreateListing(t, env.db, u2.ID, 28.61, 77.21, 25000)

	conv, err := env.svc.StartConversation(ctx, StartConversationInput{UserID: u1.ID, ListingID: l1.ID, OwnerID: u2.ID})
	require.NoError(t, err)

	again, err := env.svc.StartConversation(ctx, StartConversationInput{UserID: u1.ID, ListingID: l1.ID, OwnerID: u2.ID})
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	require.NoError(t, env.svc.MarkRead(ctx, conv.ID, u2.ID))

	_, err = env.svc.SendMessage(ctx, SendMessageInput{UserID: u1.ID, ConversationID: conv.ID, Content: "Hello"})
	require.NoError(t, err)

	list, err := env.svc.ListConversations(ctx, u2.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Hello", list[0].LastMessage)
	assert.Equal(t, 1, list[0].UnreadCount)

	reply, err := env.svc.SendMessage(ctx, SendMessageInput{UserID: u2.ID, ConversationID: conv.ID, Content: "Hi back"})
	require.NoError(t, err)
	assert.Equal(t, []uint{u2.ID}, reply.ReadBy)

	list, err = env.svc.ListConversations(ctx, u1.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Hi back", list[0].LastMessage)
	assert.Equal(t, 1, list[0].UnreadCount)
	assert.Equal(t, 1, list[0].UnreadFor(u2.ID), "sending leaves the sender's own counter alone")

	msgs, err := env.svc.ListMessages(ctx, conv.ID, u1.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "Hi back", msgs[1].Content)

	assert.Equal(t, []string{
		notifications.EventConversationStarted,
		notifications.EventConversationRead,
		notifications.EventMessageSent,
		notifications.EventMessageSent,
	}, env.events.types())
	sent := env.events.events[2]
	assert.Equal(t, []uint{u2.ID}, sent.RecipientIDs)
	assert.Equal(t, l1.ID, sent.ListingID)
}

func TestChatService_StartConversationValidation(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()
	viewer := testutil.CreateUser(t, env.db, "Viewer")
	owner := testutil.CreateUser(t, env.db, "Owner")
	listing := testutil.CreateListing(t, env.db, owner.ID, 1, 1, 100)

	tests := []struct {
		name   string
		in     StartConversationInput
		status int
	}{
		{"missing listing", StartConversationInput{UserID: viewer.ID, OwnerID: owner.ID}, 400},
		{"with yourself", StartConversationInput{UserID: owner.ID, ListingID: listing.ID, OwnerID: owner.ID}, 400},
		{"unknown listing", StartConversationInput{UserID: viewer.ID, ListingID: 9999, OwnerID: owner.ID}, 404},
		{"owner mismatch", StartConversationInput{UserID: viewer.ID, ListingID: listing.ID, OwnerID: viewer.ID + 100}, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.StartConversation(ctx, tt.in)
			requireStatus(t, tt.status, err)
		})
	}
	assert.Empty(t, env.events.types())
}

func TestChatService_SendMessageValidation(t *testing.T) {
	env := newChatEnv(t)
	ctx := context.Background()
	viewer := testutil.CreateUser(t, env.db, "Viewer")
	owner := testutil.CreateUser(t, env.db, "Owner")
	stranger := testutil.CreateUser(t, env.db, "Stranger")
	listing := testutil.CreateListing(t, env.db, owner.ID, 1, 1, 100)
	conv, err := env.svc.StartConversation(ctx, StartConversationInput{UserID: viewer.ID, ListingID: listing.ID, OwnerID: owner.ID})
	require.NoError(t, err)

	tests := []struct {
		name   string
		in     SendMessageInput
		status int
	}{
		{"empty", SendMessageInput{UserID: viewer.ID, ConversationID: conv.ID, Content: "   "}, 400},
		{"too long", SendMessageInput{UserID: viewer.ID, ConversationID: conv.ID, Content: strings.Repeat("a", MaxMessageLength+1)}, 400},
		{"no conversation", SendMessageInput{UserID: viewer.ID, Content: "hi"}, 400},
		{"not a participant", SendMessageInput{UserID: stranger.ID, ConversationID: conv.ID, Content: "hi"}, 403},
		{"unknown conversation", SendMessageInput{UserID: viewer.ID, ConversationID: 9999, Content: "hi"}, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.SendMessage(ctx, tt.in)
			requireStatus(t, tt.status, err)
		})
	}

	_, err = env.svc.SendMessage(ctx, SendMessageInput{UserID: viewer.ID, ConversationID: conv.ID, Content: strings.Repeat("é", MaxMessageLength)})
	assert.NoError(t, err, "limit counts characters, not bytes")

	_, err = env.svc.ListMessages(ctx, conv.ID, stranger.ID)
	requireStatus(t, 403, err)
	_, err = env.svc.ListMessages(ctx, 0, viewer.ID)
	requireStatus(t, 400, err)
	requireStatus(t, 403, env.svc.MarkRead(ctx, conv.ID, stranger.ID))
}
