package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
)

// Record is one tapped notification as written to the topic.
type Record struct {
	ID           string              `json:"id"`
	DriverID     string              `json:"driver_id,omitempty"`
	Notification models.Notification `json:"notification"`
	ReceivedAt   time.Time           `json:"received_at"`
}

// NewRecord stamps n with a fresh id and the current time.
func NewRecord(n models.Notification, driverID string) Record {
	return Record{ID: uuid.NewString(), DriverID: driverID, Notification: n, ReceivedAt: time.Now().UTC()}
}

// Key partitions records so one user's notifications stay ordered.
func (r Record) Key() []byte {
	if r.Notification.UserID != "" {
		return []byte(r.Notification.UserID)
	}
	return []byte(r.ID)
}

// Tap receives a copy of every applied notification.
type Tap interface {
	Publish(ctx context.Context, r Record) error
	Close() error
}

type KafkaTap struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaTap(brokers []string, topic string) *KafkaTap {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.Hash{}, BatchTimeout: 50 * time.Millisecond})
	return &KafkaTap{writer: w, timeout: 2 * time.Second}
}

func (k *KafkaTap) Publish(ctx context.Context, r Record) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	b, err := json.Marshal(r)
	if err != nil {
		observability.TapPublished.WithLabelValues("error").Inc()
		return err
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: r.Key(), Value: b}); err != nil {
		observability.TapPublished.WithLabelValues("error").Inc()
		return err
	}
	observability.TapPublished.WithLabelValues("ok").Inc()
	return nil
}

func (k *KafkaTap) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// NopTap discards everything; used when no brokers are configured.
type NopTap struct{}

func (NopTap) Publish(context.Context, Record) error { return nil }
func (NopTap) Close() error                          { return nil }
