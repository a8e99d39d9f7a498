// Package events carries created notifications from the API server to the
// notifier process over Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/models"
)

var log = logger.New("events")

const TypeNotificationCreated = "notification.created"

// NotificationCreated is the record written for every stored notification
type NotificationCreated struct {
	Type         string               `json:"type"`
	Notification *models.Notification `json:"notification"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes notifications to a topic, keyed by recipient so one
// user's notifications stay ordered within a partition.
type KafkaPublisher struct {
	w     messageWriter
	topic string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	}
	return &KafkaPublisher{w: w, topic: topic}
}

func (p *KafkaPublisher) PublishNotification(ctx context.Context, n *models.Notification) error {
	value, err := json.Marshal(NotificationCreated{
		Type:         TypeNotificationCreated,
		Notification: n,
		OccurredAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.UserID.String()),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", p.topic, err)
	}
	log.Debug("Notification %s published to %s", n.ID, p.topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
