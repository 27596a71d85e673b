package question

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/classlive/platform/internal/errors"
	"github.com/classlive/platform/internal/observability/metrics"
	"github.com/classlive/platform/internal/trace"
)

// DeliveryConfig holds Kafka delivery configuration.
type DeliveryConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// KafkaDelivery publishes generated questions to the question topic,
// keyed by lecture so every consumer sees one lecture's questions in
// order. When disabled it runs in log-only mode.
type KafkaDelivery struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	metrics *metrics.Metrics
}

// NewKafkaDelivery creates the delivery publisher.
func NewKafkaDelivery(cfg DeliveryConfig) *KafkaDelivery {
	m := metrics.Default

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		slog.Info("question delivery in log-only mode")
		return &KafkaDelivery{topic: cfg.Topic, enabled: false, metrics: m}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	slog.Info("question delivery initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &KafkaDelivery{writer: writer, topic: cfg.Topic, enabled: true, metrics: m}
}

// Deliver publishes one question.
func (d *KafkaDelivery) Deliver(ctx context.Context, q Question) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidArgument, "marshal question")
	}

	slog.Debug("delivering question", "id", q.ID, "lecture", q.LectureID, "origin", q.Origin)

	if !d.enabled {
		slog.Info("question (log-only)", "id", q.ID, "question", q.Prompt)
		d.metrics.DeliveryTotal.WithLabelValues("ok").Inc()
		return nil
	}

	headers := []kafka.Header{
		{Key: "origin", Value: []byte(q.Origin)},
		{Key: "questionType", Value: []byte(q.Type)},
	}
	if tc, ok := trace.FromContext(ctx); ok {
		for k, v := range tc.ToHeaders() {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}

	msg := kafka.Message{
		Key:     []byte(q.LectureID),
		Value:   payload,
		Headers: headers,
	}

	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		d.metrics.DeliveryTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, errors.CodeDeliveryFailed, "write question to topic")
	}

	d.metrics.DeliveryTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close closes the underlying writer.
func (d *KafkaDelivery) Close() error {
	if d.writer == nil {
		return nil
	}
	return d.writer.Close()
}
