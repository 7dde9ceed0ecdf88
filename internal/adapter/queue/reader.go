package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cafemetrics/sales-ingest-service/internal/config"
)

// Handler processes one dequeued job.
type Handler func(ctx context.Context, job JobMessage) error

// Reader consumes ingestion jobs from the jobs topic as part of a consumer
// group. Delivery is at-most-once per group: offsets are committed after the
// handler returns whether or not it succeeded, because job outcomes are
// recorded durably in the job run itself and a blind redelivery would re-run
// a job that already reached a terminal state.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the jobs topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaJobsTopic,
		GroupID:     cfg.KafkaGroupID,
		MinBytes:    1,
		MaxBytes:    50e6, // uploads ride inside the message
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger}
}

// Consume fetches and handles jobs until ctx is cancelled.
func (r *Reader) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		job, err := deserializeMessage(msg)
		if err != nil {
			r.logger.Error("dropping malformed job message",
				"error", err, "offset", msg.Offset, "partition", msg.Partition)
		} else if err := handler(ctx, job); err != nil {
			r.logger.Error("job handler failed", "job_id", job.JobID, "error", err)
		}

		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}
