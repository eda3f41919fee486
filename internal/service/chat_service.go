package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"rentonmap/internal/models"
	"rentonmap/internal/notifications"
	"rentonmap/internal/observability"
	"rentonmap/internal/repository"
)

// MaxMessageLength is the longest accepted message, in characters.
const MaxMessageLength = 10000

// ChatService provides conversation and message business logic.
type ChatService struct {
	chatRepo    repository.ChatRepository
	listingRepo repository.ListingRepository
	events      notifications.Publisher
}

// StartConversationInput is the input for starting a conversation.
type StartConversationInput struct {
	UserID    uint
	ListingID uint
	OwnerID   uint
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	UserID         uint
	ConversationID uint
	Content        string
}

// NewChatService returns a new ChatService.
func NewChatService(
	chatRepo repository.ChatRepository,
	listingRepo repository.ListingRepository,
	events notifications.Publisher,
) *ChatService {
	if events == nil {
		events = notifications.Nop{}
	}
	return &ChatService{chatRepo: chatRepo, listingRepo: listingRepo, events: events}
}

// StartConversation returns the conversation between the user and the
// listing's owner about that listing, creating it on first contact.
func (s *ChatService) StartConversation(ctx context.Context, in StartConversationInput) (*models.Conversation, error) {
	if in.ListingID == 0 || in.OwnerID == 0 {
		return nil, models.NewValidationError("Missing required fields", "propertyId", "ownerId")
	}
	if in.OwnerID == in.UserID {
		return nil, models.NewValidationError("You cannot start a conversation with yourself", "ownerId")
	}

	listing, err := s.listingRepo.GetByID(ctx, in.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != in.OwnerID {
		return nil, models.NewValidationError("ownerId does not own this property", "ownerId")
	}

	conv, created, err := s.chatRepo.FindOrCreateConversation(ctx, in.ListingID, in.UserID, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if created {
		s.publish(ctx, notifications.Event{
			Type:           notifications.EventConversationStarted,
			ConversationID: conv.ID,
			ListingID:      in.ListingID,
			ActorID:        in.UserID,
			RecipientIDs:   []uint{in.OwnerID},
		})
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recent first.
func (s *ChatService) ListConversations(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	return s.chatRepo.ListConversations(ctx, userID)
}

// ListMessages returns the full history of a conversation the user takes
// part in, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, conversationID, userID uint) ([]*models.Message, error) {
	if conversationID == 0 {
		return nil, models.NewValidationError("Missing conversationId", "conversationId")
	}
	return s.chatRepo.ListMessages(ctx, conversationID, userID)
}

// SendMessage appends a message and bumps the other participant's unread
// counter.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if in.ConversationID == 0 {
		return nil, models.NewValidationError("Missing fields", "conversationId")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, models.NewValidationError("content is required", "content")
	}
	if utf8.RuneCountInString(in.Content) > MaxMessageLength {
		return nil, models.NewValidationError("content must be at most 10000 characters", "content")
	}

	msg := &models.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.UserID,
		Content:        in.Content,
	}
	conv, err := s.chatRepo.AppendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	observability.MessagesSent.Inc()

	var recipients []uint
	for _, p := range conv.Participants {
		if p.UserID != in.UserID {
			recipients = append(recipients, p.UserID)
		}
	}
	s.publish(ctx, notifications.Event{
		Type:           notifications.EventMessageSent,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		ListingID:      conv.ListingID,
		ActorID:        in.UserID,
		RecipientIDs:   recipients,
		Preview:        notifications.Preview(msg.Content),
		OccurredAt:     msg.CreatedAt,
	})
	return msg, nil
}

// MarkRead resets the user's unread counter for the conversation.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, userID uint) error {
	if err := s.chatRepo.MarkAllRead(ctx, conversationID, userID); err != nil {
		return err
	}
	s.publish(ctx, notifications.Event{
		Type:           notifications.EventConversationRead,
		ConversationID: conversationID,
		ActorID:        userID,
	})
	return nil
}

func (s *ChatService) publish(ctx context.Context, e notifications.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := s.events.Publish(ctx, e); err != nil {
		observability.LogAsyncOperationError(ctx, "events.publish", err, map[string]any{"type": e.Type})
	}
}
