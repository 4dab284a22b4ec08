package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/bitrot/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeDecayImage = "image:decay"

type DecayImagePayload struct {
	JobID       string                `json:"job_id"`
	SourceType  string                `json:"source_type"`
	WebhookURL  string                `json:"webhook_url,omitempty"`
	ObjectKey   string                `json:"object_key"`
	Pipeline    []domain.PipelineStep `json:"pipeline"`
	RequestedAt time.Time             `json:"requested_at"`
}

func NewDecayImageTask(payload DecayImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal decay payload: %w", err)
	}
	return asynq.NewTask(TypeDecayImage, body), nil
}

func ParseDecayImagePayload(task *asynq.Task) (DecayImagePayload, error) {
	var payload DecayImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DecayImagePayload{}, fmt.Errorf("unmarshal decay payload: %w", err)
	}
	return payload, nil
}
