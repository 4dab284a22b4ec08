package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/bitrot/internal/decay"
	"github.com/dunamismax/bitrot/internal/domain"
	"github.com/dunamismax/bitrot/internal/id"
	"github.com/dunamismax/bitrot/internal/queue"
	"github.com/dunamismax/bitrot/internal/store"
	"github.com/hibiken/asynq"
	"github.com/inhies/go-bytesize"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderIntegrity = "X-Bitrot-Integrity"
	HeaderQuality   = "X-Bitrot-Quality"
	HeaderFallback  = "X-Bitrot-Fallback"
)

type Config struct {
	PresignTTL            time.Duration
	MaxUploadBytes        int64
	DefaultIntegrity      float64
	RateLimitUserIDHeader string
	// MaxPixels caps source width*height; zero keeps the decay default and
	// a negative value disables the check.
	MaxPixels int64
}

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	jobStore              store.JobStore
	storage               objectStorage
	fs                    afero.Fs
	decayerFor            func(seed *uint64) bytesDecayer
	presignTTL            time.Duration
	maxUploadBytes        int64
	defaultIntegrity      float64
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueDecayImage(ctx context.Context, payload queue.DecayImagePayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type bytesDecayer interface {
	Bytes(data []byte, integrity float64) decay.Result
}

type Option func(s *Server)

func WithRateLimiter(l RateLimiter) Option {
	return func(s *Server) { s.rateLimiter = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

func WithFs(fs afero.Fs) Option {
	return func(s *Server) {
		if fs != nil {
			s.fs = fs
		}
	}
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, jobStore store.JobStore, storage objectStorage, cfg Config, opts ...Option) *Server {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = int64(20 * bytesize.MB)
	}
	if cfg.MaxPixels == 0 {
		cfg.MaxPixels = decay.DefaultMaxPixels
	}
	if strings.TrimSpace(cfg.RateLimitUserIDHeader) == "" {
		cfg.RateLimitUserIDHeader = "X-User-ID"
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		jobStore:              jobStore,
		storage:               storage,
		fs:                    afero.NewOsFs(),
		presignTTL:            cfg.PresignTTL,
		maxUploadBytes:        cfg.MaxUploadBytes,
		defaultIntegrity:      decay.Clamp(cfg.DefaultIntegrity),
		rateLimitUserIDHeader: cfg.RateLimitUserIDHeader,
		metrics:               newMetrics(),
		mux:                   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.decayerFor == nil {
		s.decayerFor = adapterFactory(logger, cfg.MaxPixels)
	}
	s.routes()
	return s
}

func adapterFactory(logger *log.Logger, maxPixels int64) func(seed *uint64) bytesDecayer {
	shared := decay.NewAdapter(decay.WithLogger(logger), decay.WithMaxPixels(maxPixels))
	return func(seed *uint64) bytesDecayer {
		if seed == nil {
			return shared
		}
		return decay.NewAdapter(
			decay.WithLogger(logger),
			decay.WithMaxPixels(maxPixels),
			decay.WithTransform(decay.NewTransform(decay.WithSeed(*seed))),
		)
	}
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/decay", s.handleDecay)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDecay always answers 200 with an image once the request itself is
// well formed: the decayed JPEG, or the uploaded bytes when decay fails.
func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	integrity, err := parseIntegrity(query.Get("integrity"), s.defaultIntegrity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	seed, err := parseSeed(query.Get("seed"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("image exceeds %s", bytesize.New(float64(s.maxUploadBytes))),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body must contain an image"})
		return
	}

	res := s.decayerFor(seed).Bytes(body, integrity)
	s.metrics.observeDecay(res)

	w.Header().Set(HeaderIntegrity, strconv.FormatFloat(res.Integrity, 'f', -1, 64))
	if res.Fallback {
		w.Header().Set(HeaderFallback, res.Reason())
		w.Header().Set("Content-Type", http.DetectContentType(res.Data))
	} else {
		w.Header().Set(HeaderQuality, strconv.Itoa(res.Quality))
		w.Header().Set("Content-Type", "image/jpeg")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func parseIntegrity(raw string, fallback float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("integrity must be a number: %q", raw)
	}
	// Out-of-range values are clamped by the transform; NaN is not a level.
	if math.IsNaN(v) {
		return 0, errors.New("integrity must be a number")
	}
	return v, nil
}

func parseSeed(raw string) (*uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("seed must be an unsigned integer: %q", raw)
	}
	return &v, nil
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("presign failed job_id=%s err=%v", jobID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		UserID:     strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader)),
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		Pipeline:   req.Pipeline,
		ObjectKey:  objectKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed job_id=%s err=%v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url": fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":      job.ID,
		"status":      job.Status,
		"source_type": job.SourceType,
		"object_key":  job.ObjectKey,
		"pipeline":    job.Pipeline,
		"created_at":  job.CreatedAt,
		"updated_at":  job.UpdatedAt,
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobStatusCreated {
		writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("job already %s", job.Status)})
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.DecayImagePayload{
		JobID:       job.ID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Pipeline:    job.Pipeline,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueDecayImage(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed job_id=%s err=%v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed job_id=%s err=%v", job.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed job_id=%s err=%v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return domain.Job{}, false
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return domain.Job{}, false
	}
	return job, true
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	var (
		exists bool
		err    error
	)
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		exists, err = afero.Exists(s.fs, job.ObjectKey)
	default:
		exists, err = s.storage.ObjectExists(ctx, job.ObjectKey)
	}
	if err != nil {
		return fmt.Errorf("source object check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("source object is missing: %s", job.ObjectKey)
	}
	return nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
