package repository

import (
	"context"
	"errors"
	"time"

	"rentonmap/internal/models"
	"rentonmap/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository defines the interface for conversation and message storage.
type ChatRepository interface {
	FindOrCreateConversation(ctx context.Context, listingID, viewerID, ownerID uint) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, id uint) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uint) ([]*models.Conversation, error)
	AppendMessage(ctx context.Context, msg *models.Message) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID, viewerID uint) ([]*models.Message, error)
	MarkAllRead(ctx context.Context, conversationID, userID uint) error
}

type chatRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
	now func() time.Time
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db, log: observability.NewRepoLogger("conversations"), now: time.Now}
}

// FindOrCreateConversation returns the conversation for the pair on the
// listing, creating it when absent. The unique (listing_id, participant_key)
// index makes concurrent callers converge on one row. The bool reports
// whether this call created it.
func (r *chatRepository) FindOrCreateConversation(ctx context.Context, listingID, viewerID, ownerID uint) (*models.Conversation, bool, error) {
	key := models.ParticipantKey(viewerID, ownerID)
	var (
		conv    models.Conversation
		created bool
	)

	err := traced(ctx, "conversations", "FindOrCreate", func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := r.now()
			candidate := models.Conversation{
				ListingID:      listingID,
				ParticipantKey: key,
				LastMessage:    models.StartedConversationText,
				LastMessageAt:  now,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "listing_id"}, {Name: "participant_key"}},
				DoNothing: true,
			}).Omit("Listing", "Participants").Create(&candidate)
			if res.Error != nil {
				return res.Error
			}

			if res.RowsAffected == 1 {
				created = true
				participants := []models.ConversationParticipant{
					{ConversationID: candidate.ID, UserID: viewerID},
					{ConversationID: candidate.ID, UserID: ownerID, UnreadCount: 1},
				}
				if err := tx.Omit("User").Create(&participants).Error; err != nil {
					return err
				}
			}

			return tx.Preload("Participants").
				Where("listing_id = ? AND participant_key = ?", listingID, key).
				First(&conv).Error
		})
	})
	if err != nil {
		r.log.LogError(ctx, err, "find_or_create")
		return nil, false, models.NewInternalError(err)
	}
	if created {
		r.log.LogCreate(ctx, map[string]any{"conversation_id": conv.ID, "listing_id": listingID})
	}
	return &conv, created, nil
}

func (r *chatRepository) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Preload("Participants.User").
		Preload("Listing").
		First(&conv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Conversation", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recent activity
// first, with UnreadCount set for that user.
func (r *chatRepository) ListConversations(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	conversations := []*models.Conversation{}
	err := traced(ctx, "conversations", "ListConversations", func(ctx context.Context) error {
		return r.db.WithContext(ctx).
			Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
			Preload("Participants").
			Preload("Participants.User").
			Preload("Listing").
			Order("conversations.last_message_at DESC, conversations.id DESC").
			Find(&conversations).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "list")
		return nil, models.NewInternalError(err)
	}
	for _, c := range conversations {
		c.UnreadCount = c.UnreadFor(userID)
	}
	return conversations, nil
}

// AppendMessage stores msg and updates the conversation summary in one
// transaction: last message fields are overwritten, every other participant's
// unread counter goes up by one and the sender is recorded as a reader.
func (r *chatRepository) AppendMessage(ctx context.Context, msg *models.Message) (*models.Conversation, error) {
	var conv models.Conversation
	err := traced(ctx, "messages", "AppendMessage", func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireParticipant(tx, msg.ConversationID, msg.SenderID); err != nil {
				return err
			}

			if msg.CreatedAt.IsZero() {
				msg.CreatedAt = r.now()
			}
			if err := tx.Omit("Sender", "Reads").Create(msg).Error; err != nil {
				return err
			}
			read := models.MessageRead{MessageID: msg.ID, UserID: msg.SenderID, ReadAt: msg.CreatedAt}
			if err := tx.Create(&read).Error; err != nil {
				return err
			}

			if err := tx.Model(&models.Conversation{}).
				Where("id = ?", msg.ConversationID).
				Updates(map[string]any{
					"last_message":    msg.Content,
					"last_message_at": msg.CreatedAt,
				}).Error; err != nil {
				return err
			}

			if err := tx.Model(&models.ConversationParticipant{}).
				Where("conversation_id = ? AND user_id <> ?", msg.ConversationID, msg.SenderID).
				UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error; err != nil {
				return err
			}

			return tx.Preload("Participants").First(&conv, msg.ConversationID).Error
		})
	})
	if err != nil {
		return nil, failed(ctx, r.log, "append_message", err)
	}
	msg.ReadBy = []uint{msg.SenderID}
	return &conv, nil
}

// ListMessages returns the full history oldest first. viewerID must be a
// participant.
func (r *chatRepository) ListMessages(ctx context.Context, conversationID, viewerID uint) ([]*models.Message, error) {
	messages := []*models.Message{}
	err := traced(ctx, "messages", "ListMessages", func(ctx context.Context) error {
		db := r.db.WithContext(ctx)
		if err := requireParticipant(db, conversationID, viewerID); err != nil {
			return err
		}
		return db.
			Where("conversation_id = ?", conversationID).
			Preload("Sender", func(db *gorm.DB) *gorm.DB {
				return db.Select("id", "name", "image", "is_verified")
			}).
			Preload("Reads").
			Order("created_at ASC, id ASC").
			Find(&messages).Error
	})
	if err != nil {
		return nil, appError(err)
	}
	for _, m := range messages {
		m.ReadBy = make([]uint, 0, len(m.Reads))
		for _, rd := range m.Reads {
			m.ReadBy = append(m.ReadBy, rd.UserID)
		}
	}
	return messages, nil
}

// MarkAllRead zeroes the user's unread counter and records the user as a
// reader of every message in the conversation. Repeating it is a no-op.
func (r *chatRepository) MarkAllRead(ctx context.Context, conversationID, userID uint) error {
	err := traced(ctx, "conversation_participants", "MarkAllRead", func(ctx context.Context) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := r.now()
			res := tx.Model(&models.ConversationParticipant{}).
				Where("conversation_id = ? AND user_id = ?", conversationID, userID).
				Updates(map[string]any{"unread_count": 0, "last_read_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return requireParticipant(tx, conversationID, userID)
			}
			return tx.Exec(
				`INSERT INTO message_reads (message_id, user_id, read_at)
				 SELECT id, ?, ? FROM messages WHERE conversation_id = ?
				 ON CONFLICT DO NOTHING`,
				userID, now, conversationID,
			).Error
		})
	})
	if err != nil {
		return failed(ctx, r.log, "mark_all_read", err)
	}
	return nil
}

// requireParticipant returns NOT_FOUND for an unknown conversation and
// FORBIDDEN when userID is not one of its participants.
func requireParticipant(db *gorm.DB, conversationID, userID uint) error {
	var n int64
	if err := db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := db.Model(&models.Conversation{}).Where("id = ?", conversationID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return models.NewNotFoundError("Conversation", conversationID)
	}
	return models.NewForbiddenError("You are not a participant in this conversation")
}
