package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"rentonmap/internal/middleware"
	"rentonmap/internal/observability"

	"github.com/redis/go-redis/v9"
)

// ListingsChannel carries listing lifecycle events.
const ListingsChannel = "events:listings"

// Notifier publishes events into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Publish routes conversation events to the conversation channel and each
// recipient's channel; listing events go to ListingsChannel.
func (n *Notifier) Publish(ctx context.Context, e Event) (err error) {
	if n.rdb == nil {
		return nil
	}
	defer func() {
		observability.EventsPublished.WithLabelValues("redis", observability.Outcome(err)).Inc()
	}()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if strings.HasPrefix(e.Type, "listing.") {
		return n.rdb.Publish(ctx, ListingsChannel, payload).Err()
	}

	pipe := n.rdb.Pipeline()
	if e.ConversationID != 0 {
		pipe.Publish(ctx, ConversationChannel(e.ConversationID), payload)
	}
	for _, id := range e.RecipientIDs {
		pipe.Publish(ctx, UserChannel(id), payload)
	}
	if pipe.Len() == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

func (n *Notifier) Close() error { return nil }

// Subscribe delivers events from the user, conversation and listing channels
// to onEvent until ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context, onEvent func(channel string, e Event)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "notifications:user:*", "chat:conv:*", ListingsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					middleware.Logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in event subscriber", "panic", r, "stack", string(debug.Stack()))
						}
					}()
					onEvent(msg.Channel, e)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "notifications:user:" + strconv.FormatUint(uint64(userID), 10)
}

// ConversationChannel derives the Redis channel name for a conversation.
func ConversationChannel(conversationID uint) string {
	return "chat:conv:" + strconv.FormatUint(uint64(conversationID), 10)
}
