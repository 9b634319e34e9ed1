package repository

import (
	"context"
	"fmt"
	"strconv"

	"ArbPull/internal/domain/models"
)

// TopicPublisher is the producer surface used by the Kafka-backed sinks.
type TopicPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaTickRecorder streams finalized tick records, keyed by run so one
// engine's ticks stay ordered within a partition.
type KafkaTickRecorder struct {
	pub   TopicPublisher
	topic string
}

func NewKafkaTickRecorder(pub TopicPublisher, topic string) *KafkaTickRecorder {
	return &KafkaTickRecorder{pub: pub, topic: topic}
}

func (k *KafkaTickRecorder) Record(ctx context.Context, rec *models.TickRecord) error {
	if err := k.pub.Publish(ctx, k.topic, []byte(rec.RunID), rec); err != nil {
		return fmt.Errorf("publish tick %d: %w", rec.Seq, err)
	}
	return nil
}

// Close leaves the shared producer open; its owner closes it.
func (k *KafkaTickRecorder) Close() error { return nil }

// KafkaSnapshotPublisher streams status snapshots.
type KafkaSnapshotPublisher struct {
	pub   TopicPublisher
	topic string
}

func NewKafkaSnapshotPublisher(pub TopicPublisher, topic string) *KafkaSnapshotPublisher {
	return &KafkaSnapshotPublisher{pub: pub, topic: topic}
}

func (k *KafkaSnapshotPublisher) Publish(ctx context.Context, snap *models.Snapshot) error {
	key := []byte(strconv.FormatUint(snap.TickCount, 10))
	if err := k.pub.Publish(ctx, k.topic, key, snap); err != nil {
		return fmt.Errorf("publish snapshot %d: %w", snap.TickCount, err)
	}
	return nil
}

// NoopTickRecorder drops records. Used when no audit backend is configured.
type NoopTickRecorder struct{}

func NewNoopTickRecorder() *NoopTickRecorder { return &NoopTickRecorder{} }

func (NoopTickRecorder) Record(context.Context, *models.TickRecord) error { return nil }
func (NoopTickRecorder) Close() error                                    { return nil }
