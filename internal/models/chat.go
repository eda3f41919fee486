package models

import (
	"fmt"
	"time"
)

// StartedConversationText is the synthetic last message of a new conversation.
const StartedConversationText = "Started conversation"

// Conversation is a 1:1 thread between two users about one listing.
type Conversation struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// ListingID and ParticipantKey are unique together.
	ListingID      uint            `gorm:"not null;uniqueIndex:idx_conversations_listing_pair" json:"propertyId"`
	ParticipantKey string          `gorm:"size:64;not null;uniqueIndex:idx_conversations_listing_pair" json:"-"`
	Listing        *ListingSummary `gorm:"foreignKey:ListingID" json:"property"`
	LastMessage    string          `gorm:"type:text" json:"lastMessage"`
	LastMessageAt  time.Time       `gorm:"index" json:"lastMessageAt"`
	// Participants are never more than two.
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants"`
	// UnreadCount is the requesting user's counter, filled by the service.
	UnreadCount int       `gorm:"-" json:"unreadCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UnreadFor returns the unread counter of the given participant.
func (c *Conversation) UnreadFor(userID uint) int {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p.UnreadCount
		}
	}
	return 0
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID uint) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantKey builds the order-independent key for a pair of users.
func ParticipantKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ConversationParticipant holds one side of a conversation and its unread counter.
type ConversationParticipant struct {
	ConversationID uint         `gorm:"primaryKey;autoIncrement:false" json:"-"`
	UserID         uint         `gorm:"primaryKey;autoIncrement:false;index" json:"userId"`
	User           *UserSummary `gorm:"foreignKey:UserID" json:"user,omitempty"`
	UnreadCount    int          `gorm:"not null;default:0" json:"unreadCount"`
	LastReadAt     *time.Time   `json:"lastReadAt,omitempty"`
}

// Message is a single append-only chat utterance.
type Message struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	ConversationID uint          `gorm:"not null;index:idx_messages_conversation_created,priority:1" json:"conversationId"`
	SenderID       uint          `gorm:"not null;index" json:"senderId"`
	Sender         *UserSummary  `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Content        string        `gorm:"type:text;not null" json:"content"`
	Reads          []MessageRead `gorm:"foreignKey:MessageID" json:"-"`
	// ReadBy is derived from Reads.
	ReadBy    []uint    `gorm:"-" json:"readBy"`
	CreatedAt time.Time `gorm:"index:idx_messages_conversation_created,priority:2" json:"createdAt"`
}

// MessageRead records that a user has seen a message.
type MessageRead struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false"`
	ReadAt    time.Time `gorm:"autoCreateTime"`
}
