package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/framefold/framefold/internal/config"
	"github.com/framefold/framefold/internal/domain"
	"github.com/framefold/framefold/internal/engine"
	"github.com/framefold/framefold/internal/pipeline"
	"github.com/framefold/framefold/internal/queue"
	"github.com/framefold/framefold/internal/storage"
	"github.com/framefold/framefold/internal/store"
	"github.com/framefold/framefold/internal/webhook"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	converter     converter
	engineErr     error
	storage       objectStore
	webhookClient webhookSender
	runStore      store.RunStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
}

type converter interface {
	Run(ctx context.Context, job domain.ConversionJob, progress pipeline.ProgressFunc) (domain.RunResult, error)
}

type objectStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveObjects(ctx context.Context, objectKeys []string) error
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	runStore store.RunStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if runStore == nil {
		return nil, fmt.Errorf("run store is required")
	}

	// An engine that fails to come up poisons the whole feature, not one
	// run. The server still starts so queued runs fail fast with a clear
	// message instead of sitting unclaimed.
	var (
		conv      converter
		engineErr error
	)
	eng, err := engine.New()
	if err != nil {
		engineErr = fmt.Errorf("%w: %v", pipeline.ErrEngineUnavailable, err)
		logger.Printf("engine initialization failed: %v", err)
	} else {
		conv = pipeline.New(eng)
	}

	if usageStore == nil {
		if runAndUsageStore, ok := runStore.(store.UsageStore); ok {
			usageStore = runAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveRuns)),
		converter:     conv,
		engineErr:     engineErr,
		storage:       storageClient,
		webhookClient: webhookClient,
		runStore:      runStore,
		usageStore:    usageStore,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("framefold/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeConvertRun, s.handleConvertRun)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleConvertRun(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.RunStatusFailed

	payload, err := queue.ParseConvertRunPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.convert_run", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(attribute.String("run.id", payload.RunID))
	defer span.End()
	defer func() {
		s.metrics.runDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.runsTotal.WithLabelValues(outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeRuns.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeRuns.Dec()
	}()

	run, ok, err := s.runStore.Get(ctx, payload.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", payload.RunID, err)
	}
	if !ok {
		return fmt.Errorf("run %s not found: %w", payload.RunID, asynq.SkipRetry)
	}

	span.SetAttributes(
		attribute.Int("run.items", len(run.Job.Items)),
		attribute.String("run.target_format", string(run.Job.TargetFormat)),
		attribute.Bool("run.merge", run.Job.MergePath()),
	)

	s.logger.Printf(
		"Working... run_id=%s items=%d target=%s merge=%v",
		run.ID,
		len(run.Job.Items),
		run.Job.TargetFormat,
		run.Job.MergePath(),
	)

	if s.converter == nil {
		err := s.failRun(ctx, run, span, s.engineErr)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	s.updateRunStatus(ctx, run.ID, domain.RunStatusProcessing)

	if err := s.loadSources(ctx, &run); err != nil {
		failErr := s.failRun(ctx, run, span, err)
		return fmt.Errorf("load sources: %w", failErr)
	}

	result, err := s.converter.Run(ctx, run.Job, func(update domain.ProgressUpdate) {
		if err := s.runStore.UpdateProgress(ctx, run.ID, update); err != nil {
			s.logger.Printf("progress update failed run_id=%s err=%v", run.ID, err)
		}
	})
	if err != nil {
		return s.failRun(ctx, run, span, err)
	}

	output := result.Output()
	resultKey := storage.ResultKey(run.ID, output.Name)
	if err := s.storage.WriteObject(ctx, resultKey, output.Data, output.MIMEType); err != nil {
		return s.failRun(ctx, run, span, fmt.Errorf("store result: %w", err))
	}

	if err := s.runStore.SetResult(ctx, run.ID, resultKey, output.Name, output.MIMEType); err != nil {
		s.logger.Printf("set result failed run_id=%s err=%v", run.ID, err)
	}
	s.updateRunStatus(ctx, run.ID, domain.RunStatusSucceeded)
	s.recordUsage(ctx, run.ID, result, len(output.Data), time.Since(startedAt))
	s.cleanupSources(ctx, run)

	s.logger.Printf("Converted run_id=%s result=%s bytes=%d", run.ID, output.Name, len(output.Data))

	if err := s.dispatchWebhook(ctx, run, webhook.EventRunCompleted, webhook.RunEvent{
		RunID:      run.ID,
		Status:     domain.RunStatusSucceeded,
		ResultName: output.Name,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.RunStatusSucceeded
	span.SetStatus(codes.Ok, "converted")
	return nil
}

// loadSources pulls the uploaded bytes back into the job snapshot. Item data
// is never persisted with the run row; object storage is its only home
// between request and run.
func (s *Server) loadSources(ctx context.Context, run *domain.Run) error {
	if len(run.SourceKeys) != len(run.Job.Items) {
		return fmt.Errorf("run %s has %d source keys for %d items", run.ID, len(run.SourceKeys), len(run.Job.Items))
	}
	for i, key := range run.SourceKeys {
		data, err := s.storage.ReadObject(ctx, key)
		if err != nil {
			return fmt.Errorf("read source %s: %w", key, err)
		}
		run.Job.Items[i].Data = data
	}
	return nil
}

// failRun settles a run as failed: the raw error is classified into the
// user-facing message, persisted, and announced. The returned error is what
// the task handler should hand back to asynq.
func (s *Server) failRun(ctx context.Context, run domain.Run, span trace.Span, cause error) error {
	classified := pipeline.Classify(cause)
	s.metrics.failuresTotal.WithLabelValues(string(classified.Category)).Inc()

	if err := s.runStore.SetError(ctx, run.ID, classified.Message); err != nil {
		s.logger.Printf("set error failed run_id=%s err=%v", run.ID, err)
	}
	s.updateRunStatus(ctx, run.ID, domain.RunStatusFailed)

	span.RecordError(cause)
	span.SetStatus(codes.Error, string(classified.Category))

	if err := s.dispatchWebhook(ctx, run, webhook.EventRunFailed, webhook.RunEvent{
		RunID:  run.ID,
		Status: domain.RunStatusFailed,
		Error:  classified.Message,
	}); err != nil {
		s.logger.Printf("failure webhook dispatch failed run_id=%s err=%v", run.ID, err)
	}

	return fmt.Errorf("convert run %s: %w", run.ID, cause)
}

func (s *Server) updateRunStatus(ctx context.Context, runID, status string) {
	if _, err := s.runStore.UpdateStatus(ctx, runID, status); err != nil {
		s.logger.Printf("run status update failed run_id=%s status=%s err=%v", runID, status, err)
	}
}

func (s *Server) cleanupSources(ctx context.Context, run domain.Run) {
	if len(run.SourceKeys) == 0 {
		return
	}
	if err := s.storage.RemoveObjects(ctx, run.SourceKeys); err != nil {
		s.logger.Printf("source cleanup failed run_id=%s err=%v", run.ID, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, run domain.Run, event string, body webhook.RunEvent) error {
	if run.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, run.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed run_id=%s event=%s err=%v", run.ID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, runID string, result domain.RunResult, outputBytes int, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		RunID:           runID,
		ItemsProcessed:  result.Stats.ItemsProcessed,
		PixelsProcessed: result.Stats.PixelsProcessed,
		OutputBytes:     int64(outputBytes),
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed run_id=%s err=%v", runID, err)
		return
	}

	s.metrics.itemsProcessedTotal.Add(float64(result.Stats.ItemsProcessed))
	s.metrics.pixelsProcessedTotal.Add(float64(result.Stats.PixelsProcessed))
	s.metrics.outputBytesTotal.Add(float64(outputBytes))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
