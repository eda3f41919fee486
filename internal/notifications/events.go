// Package notifications publishes domain events (new messages, listing
// changes) to Redis pub/sub or Kafka for downstream consumers.
package notifications

import (
	"context"
	"time"
)

// Event types.
const (
	EventConversationStarted = "conversation.started"
	EventMessageSent         = "message.sent"
	EventConversationRead    = "conversation.read"
	EventListingCreated      = "listing.created"
	EventListingUpdated      = "listing.updated"
	EventListingDeleted      = "listing.deleted"
	EventListingPromoted     = "listing.promoted"
)

// Event is the envelope written to every transport.
type Event struct {
	Type           string    `json:"type"`
	ConversationID uint      `json:"conversationId,omitempty"`
	MessageID      uint      `json:"messageId,omitempty"`
	ListingID      uint      `json:"propertyId,omitempty"`
	ActorID        uint      `json:"actorId"`
	RecipientIDs   []uint    `json:"recipientIds,omitempty"`
	Preview        string    `json:"preview,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

const previewLimit = 140

// Preview shortens message content for event payloads.
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLimit {
		return content
	}
	return string(r[:previewLimit]) + "…"
}
