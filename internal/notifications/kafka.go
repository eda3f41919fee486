package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rentonmap/internal/observability"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed so that events of the
// same conversation or listing keep their order.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher creates a writer for brokers, a comma-separated list.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e Event) (err error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "kafka", "events.Publish")
	defer func() {
		observability.EndSpan(span, err)
		observability.EventsPublished.WithLabelValues("kafka", observability.Outcome(err)).Inc()
	}()

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(PartitionKey(e)),
		Value:   value,
		Time:    e.OccurredAt,
		Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", e.Type, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.w.Close()
}

// PartitionKey groups events by conversation, then listing.
func PartitionKey(e Event) string {
	switch {
	case e.ConversationID != 0:
		return "conversation:" + strconv.FormatUint(uint64(e.ConversationID), 10)
	case e.ListingID != 0:
		return "listing:" + strconv.FormatUint(uint64(e.ListingID), 10)
	default:
		return "user:" + strconv.FormatUint(uint64(e.ActorID), 10)
	}
}
