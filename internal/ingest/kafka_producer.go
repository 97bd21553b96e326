package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/madhavpai09/velo/internal/models"
)

// LocationUpdate is the wire record published per driver position report and
// consumed by the geo-index consumer (cmd/consumer).
type LocationUpdate struct {
	DriverID  string       `json:"driver_id"`
	Loc       models.Coord `json:"loc"`
	Available bool         `json:"available"`
	SeenAt    time.Time    `json:"seen_at"`
}

// KafkaProducer streams location updates so the fleet view can be rebuilt by
// any number of consumers without touching the API process.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishLocation(u LocationUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(u.DriverID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
