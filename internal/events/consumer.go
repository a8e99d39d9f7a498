package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ammar1510/rideshare/internal/models"
)

// HandlerFunc processes one created notification
type HandlerFunc func(ctx context.Context, n *models.Notification) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads notification records as part of a consumer group
type Consumer struct {
	r       messageReader
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Consumer{r: r, backoff: time.Second}
}

func decode(m kafka.Message) (*models.Notification, error) {
	var rec NotificationCreated
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		return nil, err
	}
	if rec.Type != TypeNotificationCreated || rec.Notification == nil {
		return nil, fmt.Errorf("unexpected record type %q", rec.Type)
	}
	return rec.Notification, nil
}

// Run feeds records to handle until ctx is cancelled. Every record is
// committed once handled; records that fail to decode or to handle are logged
// and skipped so one bad record cannot stall the partition.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error("Kafka fetch failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		n, err := decode(m)
		if err != nil {
			log.Warn("Skipping record at %s/%d@%d: %v", m.Topic, m.Partition, m.Offset, err)
		} else if err := handle(ctx, n); err != nil {
			log.Error("Handling notification %s failed: %v", n.ID, err)
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("Commit at %s/%d@%d failed: %v", m.Topic, m.Partition, m.Offset, err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}
