package repository

import (
	"context"
	"testing"
	"time"

	"rentonmap/internal/models"
	"rentonmap/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type chatFixture struct {
	db      *gorm.DB
	repo    ChatRepository
	viewer  *models.User
	owner   *models.User
	listing *models.Listing
}

// setupChat returns a repository whose clock advances one second per call.
func setupChat(t *testing.T) chatFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	repo := NewChatRepository(db)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.(*chatRepository).now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	owner := testutil.CreateUser(t, db, "U2")
	return chatFixture{
		db:      db,
		repo:    repo,
		viewer:  testutil.CreateUser(t, db, "U1"),
		owner:   owner,
		listing: testutil.CreateListing(t, db, owner.ID, 28.61, 77.21, 25000),
	}
}

func TestChatRepository_FindOrCreateIsIdempotent(t *testing.T) {
	f := setupChat(t)
	ctx := context.Background()

	first, created, err := f.repo.FindOrCreateConversation(ctx, f.listing.ID, f.viewer.ID, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.StartedConversationText, first.LastMessage)
	require.Len(t, first.Participants, 2)
	assert.Equal(t, 0, first.UnreadFor(f.viewer.ID))
	assert.Equal(t, 1, first.UnreadFor(f.owner.ID))

	second, created, err := f.repo.FindOrCreateConversation(ctx, f.listing.ID, f.viewer.ID, f.owner.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Same pair from the other side still converges on one row.
	third, created, err := f.repo.FindOrCreateConversation(ctx, f.listing.ID, f.owner.ID, f.viewer.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, third.ID)

	var n int64
	f.db.Model(&models.Conversation{}).Count(&n)
	assert.Equal(t, int64(1), n)
	f.db.Model(&models.ConversationParticipant{}).Count(&n)
	assert.Equal(t, int64(2), n)
}

func TestChatRepository_MessageFlow(t *testing.T) {
	f := setupChat(t)
	ctx := context.Background()

	conv, _, err := f.repo.FindOrCreateConversation(ctx, f.listing.ID, f.viewer.ID, f.owner.ID)
	require.NoError(t, err)
	require.NoError(t, f.repo.MarkAllRead(ctx, conv.ID, f.owner.ID))

	hello := &models.Message{ConversationID: conv.ID, SenderID: f.viewer.ID, Content: "Hello"}
	updated, err := f.repo.AppendMessage(ctx, hello)
	require.NoError(t, err)
	assert.NotZero(t, hello.ID)
	assert.Equal(t, []uint{f.viewer.ID}, hello.ReadBy)
	assert.Equal(t, "Hello", updated.LastMessage)
	assert.True(t, updated.LastMessageAt.Equal(hello.CreatedAt))
	assert.Equal(t, 1, updated.UnreadFor(f.owner.ID))
	assert.Equal(t, 0, updated.UnreadFor(f.viewer.ID))

	reply := &models.Message{ConversationID: conv.ID, SenderID: f.owner.ID, Content: "Hi back"}
	updated, err = f.repo.AppendMessage(ctx, reply)
	require.NoError(t, err)
	assert.Equal(t, "Hi back", updated.LastMessage)
	assert.Equal(t, 1, updated.UnreadFor(f.viewer.ID))
	assert.Equal(t, 1, updated.UnreadFor(f.owner.ID), "own message leaves sender's counter alone")

	msgs, err := f.repo.ListMessages(ctx, conv.ID, f.viewer.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "Hi back", msgs[1].Content)
	require.NotNil(t, msgs[0].Sender)
	assert.Equal(t, "U1", msgs[0].Sender.Name)
	assert.Empty(t, msgs[0].Sender.Email)
	assert.ElementsMatch(t, []uint{f.viewer.ID}, msgs[0].ReadBy)
	assert.ElementsMatch(t, []uint{f.owner.ID}, msgs[1].ReadBy)

	require.NoError(t, f.repo.MarkAllRead(ctx, conv.ID, f.viewer.ID))
	require.NoError(t, f.repo.MarkAllRead(ctx, conv.ID, f.viewer.ID))

	got, err := f.repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadFor(f.viewer.ID))
	assert.Equal(t, 1, got.UnreadFor(f.owner.ID))
	require.NotNil(t, got.Listing)
	assert.Equal(t, f.listing.ID, got.Listing.ID)

	msgs, err = f.repo.ListMessages(ctx, conv.ID, f.viewer.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{f.viewer.ID, f.owner.ID}, msgs[1].ReadBy)
}

func TestChatRepository_ListConversationsOrder(t *testing.T) {
	f := setupChat(t)
	ctx := context.Background()
	other := testutil.CreateListing(t, f.db, f.owner.ID, 28.62, 77.22, 18000)
	stranger := testutil.CreateUser(t, f.db, "Stranger")

	older, _, err := f.repo.FindOrCreateConversation(ctx, f.listing.ID, f.viewer.ID, f.owner.ID)
	require.NoError(t, err)
	newer, _, err := f.repo.FindOrCreateConversation(ctx, other.ID, f.viewer.ID, f.owner.ID)
	require.NoError(t, err)

	list, err := f.repo.ListConversations(ctx, f.viewer.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	_, err = f.repo.AppendMessage(ctx, &models.Message{ConversationID: older.ID, SenderID: f.owner.ID, Content: "still available"})
	require.NoError(t, err)

	list, err = f.repo.ListConversations(ctx, f.viewer.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, 1, list[0].UnreadCount)
	assert.Equal(t, 0, list[1].UnreadCount)
	require.Len(t, list[0].Participants, 2)
	assert.NotNil(t, list[0].Participants[0].User)

	list, err = f.repo.ListConversations(ctx, stranger.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestChatRepository_ParticipantChecks(t *testing.T) {
	f := setupChat(t)
	ctx := context.Background()
	stranger := testutil.CreateUser(t, f.db, "Stranger")

	conv, _, err := f.repo.FindOrCreateConversation(ctx, f.listing.ID, f.viewer.ID, f.owner.ID)
	require.NoError(t, err)

	_, err = f.repo.AppendMessage(ctx, &models.Message{ConversationID: conv.ID, SenderID: stranger.ID, Content: "hey"})
	assert.Equal(t, 403, fiberStatus(t, err))
	_, err = f.repo.ListMessages(ctx, conv.ID, stranger.ID)
	assert.Equal(t, 403, fiberStatus(t, err))
	assert.Equal(t, 403, fiberStatus(t, f.repo.MarkAllRead(ctx, conv.ID, stranger.ID)))

	_, err = f.repo.AppendMessage(ctx, &models.Message{ConversationID: 9999, SenderID: f.viewer.ID, Content: "hey"})
	assert.Equal(t, 404, fiberStatus(t, err))
	_, err = f.repo.GetConversation(ctx, 9999)
	assert.Equal(t, 404, fiberStatus(t, err))
	assert.Equal(t, 404, fiberStatus(t, f.repo.MarkAllRead(ctx, 9999, f.viewer.ID)))

	var n int64
	f.db.Model(&models.Message{}).Count(&n)
	assert.Zero(t, n, "rejected sends store nothing")
}

func TestChatRepository_ConversationSurvivesListingDelete(t *testing.T) {
	f := setupChat(t)
	ctx := context.Background()

	conv, _, err := f.repo.FindOrCreateConversation(ctx, f.listing.ID, f.viewer.ID, f.owner.ID)
	require.NoError(t, err)
	require.NoError(t, NewListingRepository(f.db).Delete(ctx, f.listing.ID))

	got, err := f.repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Listing)
	assert.Equal(t, f.listing.ID, got.ListingID)
}
