package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/dunamismax/bitrot/internal/decay"
	"github.com/dunamismax/bitrot/internal/domain"
	"github.com/dunamismax/bitrot/internal/pipeline"
	"github.com/dunamismax/bitrot/internal/queue"
	"github.com/dunamismax/bitrot/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
)

func TestRecordUsageWritesUsageLog(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:         "job-1",
		UserID:     "user-1",
		Status:     domain.JobStatusProcessing,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "input.png",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		jobStore:   jobStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), "job-1", pipeline.Result{
		SourceBytes: 1_000,
		Outputs: []pipeline.Output{
			{Width: 10, Height: 10, Bytes: 300},
			{Width: 20, Height: 20, Bytes: 400},
		},
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.UserID != "user-1" {
		t.Fatalf("expected user_id=user-1, got %s", usageStore.log.UserID)
	}
	if usageStore.log.Renditions != 2 {
		t.Fatalf("expected renditions=2, got %d", usageStore.log.Renditions)
	}
	if usageStore.log.PixelsProcessed != 500 {
		t.Fatalf("expected pixels_processed=500, got %d", usageStore.log.PixelsProcessed)
	}
	if usageStore.log.BytesSaved != 1_300 {
		t.Fatalf("expected bytes_saved=1300, got %d", usageStore.log.BytesSaved)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestRecordUsageClampsNegativeBytesSaved(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), "job-2", pipeline.Result{
		SourceBytes: 100,
		Outputs:     []pipeline.Output{{Width: 5, Height: 5, Bytes: 200}},
	}, 0)

	if usageStore.log.UserID != "anonymous" {
		t.Fatalf("expected anonymous user, got %s", usageStore.log.UserID)
	}
	if usageStore.log.BytesSaved != 0 {
		t.Fatalf("expected bytes_saved=0, got %d", usageStore.log.BytesSaved)
	}
	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestHandleDecayImageSuccess(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	seedJob(t, jobStore, "job-ok")
	hooks := &captureWebhook{}
	s := newTestWorker(jobStore, hooks, stubProcessor{result: pipeline.Result{
		SourceBytes: 500,
		Outputs:     []pipeline.Output{{StepID: "worn", Width: 4, Height: 4, Bytes: 100}},
	}})

	if err := s.handleDecayImage(context.Background(), decayTask(t, "job-ok")); err != nil {
		t.Fatalf("handle task: %v", err)
	}

	job, _, _ := jobStore.Get(context.Background(), "job-ok")
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", job.Status)
	}
	if hooks.event != "job.completed" {
		t.Fatalf("expected job.completed webhook, got %q", hooks.event)
	}
	if len(jobStore.UsageLogs()) != 1 {
		t.Fatalf("expected one usage log, got %d", len(jobStore.UsageLogs()))
	}
}

func TestHandleDecayImageDecodeFailureSkipsRetry(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	seedJob(t, jobStore, "job-bad")
	hooks := &captureWebhook{}
	s := newTestWorker(jobStore, hooks, stubProcessor{
		err: fmt.Errorf("decay stage step=a: %w", fmt.Errorf("%w: bad magic", decay.ErrDecode)),
	})

	err := s.handleDecayImage(context.Background(), decayTask(t, "job-bad"))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	job, _, _ := jobStore.Get(context.Background(), "job-bad")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if hooks.event != "job.failed" || hooks.body["stage"] != "decode" {
		t.Fatalf("expected job.failed webhook with stage decode, got %q %v", hooks.event, hooks.body)
	}
}

func TestHandleDecayImageFetchFailureRetries(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	seedJob(t, jobStore, "job-retry")
	s := newTestWorker(jobStore, nil, stubProcessor{
		err: fmt.Errorf("%w: %w", pipeline.ErrFetch, errors.New("connection reset")),
	})

	err := s.handleDecayImage(context.Background(), decayTask(t, "job-retry"))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestHandleDecayImageRejectsBadPayload(t *testing.T) {
	s := newTestWorker(nil, nil, stubProcessor{})
	err := s.handleDecayImage(context.Background(), asynq.NewTask(queue.TypeDecayImage, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestFailedStage(t *testing.T) {
	cases := map[string]error{
		"decode":    fmt.Errorf("x: %w", decay.ErrDecode),
		"encode":    fmt.Errorf("x: %w", decay.ErrEncode),
		"transform": fmt.Errorf("x: %w", decay.ErrTransform),
		"fetch":     fmt.Errorf("%w: boom", pipeline.ErrFetch),
		"emit":      fmt.Errorf("%w: boom", pipeline.ErrEmit),
		"other":     errors.New("boom"),
	}
	for want, err := range cases {
		if got := failedStage(err); got != want {
			t.Fatalf("failedStage(%v): expected %s, got %s", err, want, got)
		}
	}
}

func newTestWorker(jobStore *store.MemoryJobStore, hooks webhookSender, p processor) *Server {
	s := &Server{
		logger:          log.New(io.Discard, "", 0),
		sem:             make(chan struct{}, 1),
		localProcessor:  p,
		objectProcessor: p,
		webhookClient:   hooks,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("bitrot/worker-test"),
	}
	if jobStore != nil {
		s.jobStore = jobStore
		s.usageStore = jobStore
	}
	return s
}

func seedJob(t *testing.T, jobStore *store.MemoryJobStore, id string) {
	t.Helper()
	now := time.Now().UTC()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:         id,
		Status:     domain.JobStatusQueued,
		SourceType: domain.SourceTypeS3Presigned,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func decayTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	integrity := 0.4
	task, err := queue.NewDecayImageTask(queue.DecayImagePayload{
		JobID:       jobID,
		SourceType:  domain.SourceTypeS3Presigned,
		WebhookURL:  "http://hooks.local/bitrot",
		ObjectKey:   "uploads/" + jobID + "/source",
		Pipeline:    []domain.PipelineStep{{ID: "worn", Integrity: &integrity}},
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

type stubProcessor struct {
	result pipeline.Result
	err    error
}

func (p stubProcessor) Process(context.Context, pipeline.Request) (pipeline.Result, error) {
	return p.result, p.err
}

type captureWebhook struct {
	event string
	body  map[string]any
}

func (c *captureWebhook) Send(_ context.Context, _ string, event string, payload any) error {
	c.event = event
	c.body, _ = payload.(map[string]any)
	return nil
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}
