package queue

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cafemetrics/sales-ingest-service/internal/config"
)

// Writer publishes ingestion jobs to the jobs topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the jobs topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaJobsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Enqueue publishes one job. The call returns once all replicas acknowledge,
// so a successful enqueue means the job will eventually be picked up.
func (w *Writer) Enqueue(ctx context.Context, job JobMessage) error {
	msg, err := serializeToMessage(job)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	w.logger.Info("job enqueued", "job_id", job.JobID, "payload_bytes", len(job.Payload))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}
