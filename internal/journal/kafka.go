// Package journal publishes trip lifecycle events to Kafka for downstream
// analytics. Everything here is fire-and-forget; the relay never depends on
// a record landing.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type record struct {
	Kind      string    `json:"kind"`
	TripID    string    `json:"tripId"`
	RiderID   string    `json:"riderId,omitempty"`
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
}

type Producer struct {
	writer   *kafka.Writer
	instance string
	logger   *slog.Logger
}

func NewProducer(brokers []string, topic, instance string, logger *slog.Logger) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Producer{writer: w, instance: instance, logger: logger}
}

// TripEvent emits one lifecycle record keyed by trip id. Failures are
// logged and swallowed.
func (p *Producer) TripEvent(ctx context.Context, kind, tripID, riderID string) {
	b, err := json.Marshal(record{
		Kind:      kind,
		TripID:    tripID,
		RiderID:   riderID,
		Instance:  p.instance,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("journal marshal failed", "error", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(wctx, kafka.Message{Key: []byte(tripID), Value: b}); err != nil {
		p.logger.Warn("journal write failed", "kind", kind, "trip_id", tripID, "error", err)
	}
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
