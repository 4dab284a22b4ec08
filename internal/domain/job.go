package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	ActionDecay = "decay"
)

type CreateJobRequest struct {
	SourceType string         `json:"source_type"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	ObjectKey  string         `json:"object_key,omitempty"`
	Pipeline   []PipelineStep `json:"pipeline"`
}

// PipelineStep renders one decayed variant of the source. Integrity is
// clamped to [0,1] when applied; Seed pins the grain pattern.
type PipelineStep struct {
	ID        string   `json:"id"`
	Action    string   `json:"action,omitempty"`
	Integrity *float64 `json:"integrity"`
	Seed      *uint64  `json:"seed,omitempty"`
}

func (s PipelineStep) IntegrityValue() float64 {
	if s.Integrity == nil {
		return 1
	}
	return *s.Integrity
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Pipeline   []PipelineStep
	ObjectKey  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if len(r.Pipeline) == 0 {
		return errors.New("pipeline must contain at least one step")
	}
	for i, step := range r.Pipeline {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("pipeline[%d].id is required", i)
		}
		action := strings.ToLower(strings.TrimSpace(step.Action))
		if action != "" && action != ActionDecay {
			return fmt.Errorf("pipeline[%d].action must be %q", i, ActionDecay)
		}
		if step.Integrity == nil {
			return fmt.Errorf("pipeline[%d].integrity is required", i)
		}
		if math.IsNaN(*step.Integrity) || math.IsInf(*step.Integrity, 0) {
			return fmt.Errorf("pipeline[%d].integrity must be finite", i)
		}
	}
	if dupes := lo.FindDuplicates(lo.Map(r.Pipeline, func(s PipelineStep, _ int) string {
		return strings.TrimSpace(s.ID)
	})); len(dupes) > 0 {
		return fmt.Errorf("duplicate pipeline step ids: %s", strings.Join(dupes, ","))
	}
	return nil
}
