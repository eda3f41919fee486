package notifications

import (
	"fmt"

	"rentonmap/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewPublisher selects the transport named by EVENTS_DRIVER.
func NewPublisher(cfg *config.Config, rdb *redis.Client) (Publisher, error) {
	switch cfg.EventsDriver {
	case config.EventsDriverRedis, "":
		if rdb == nil {
			return Nop{}, nil
		}
		return NewNotifier(rdb), nil
	case config.EventsDriverKafka:
		if cfg.KafkaBrokers == "" {
			return nil, fmt.Errorf("EVENTS_DRIVER=kafka requires KAFKA_BROKERS")
		}
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.EventsDriverNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
	}
}
