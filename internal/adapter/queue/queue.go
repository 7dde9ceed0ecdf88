// Package queue moves ingestion jobs from the API to the worker over Kafka.
package queue

import (
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// JobMessage is the wire envelope for one queued ingestion job. The CSV
// payload rides along with the job so the worker needs no shared filesystem.
type JobMessage struct {
	JobID     string `json:"job_id"`
	StartedBy string `json:"started_by"`
	Payload   []byte `json:"payload"`
}

// serializeToMessage marshals a JobMessage into a Kafka message keyed by job
// id, so retries for the same job land on the same partition.
func serializeToMessage(job JobMessage) (kafkago.Message, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize job message: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(job.JobID),
		Value: data,
	}, nil
}

func deserializeMessage(msg kafkago.Message) (JobMessage, error) {
	var job JobMessage
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return JobMessage{}, fmt.Errorf("deserialize job message: %w", err)
	}
	if job.JobID == "" {
		return JobMessage{}, fmt.Errorf("job message missing job_id")
	}
	return job, nil
}
