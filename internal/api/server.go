package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"

	"github.com/framefold/framefold/internal/catalog"
	"github.com/framefold/framefold/internal/domain"
	"github.com/framefold/framefold/internal/id"
	"github.com/framefold/framefold/internal/queue"
	"github.com/framefold/framefold/internal/storage"
	"github.com/framefold/framefold/internal/store"
)

const defaultMaxUploadBytes = 256 << 20

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	runStore              store.RunStore
	storage               objectStorage
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	maxUploadBytes        int64
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueConvertRun(ctx context.Context, payload queue.ConvertRunPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

// Options carries the optional collaborators. Zero values disable the
// corresponding middleware.
type Options struct {
	RateLimiter         RateLimiter
	RateLimitUserHeader string
	Tracer              trace.Tracer
	MaxUploadBytes      int64
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, runStore store.RunStore, objects objectStorage, opts Options) *Server {
	if objects == nil {
		objects = unavailableObjectStorage{}
	}

	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	userHeader := strings.TrimSpace(opts.RateLimitUserHeader)
	if userHeader == "" {
		userHeader = "X-Framefold-User"
	}

	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		runStore:              runStore,
		storage:               objects,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: userHeader,
		maxUploadBytes:        maxUpload,
		metrics:               newMetrics(),
		tracer:                opts.Tracer,
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) WriteObject(context.Context, string, []byte, string) error {
	return errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ReadObject(context.Context, string) ([]byte, error) {
	return nil, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /v1/formats", s.handleFormats)
	s.mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	s.mux.HandleFunc("GET /v1/runs/", s.handleRunGet)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	type formatRow struct {
		Key        string `json:"key"`
		Extension  string `json:"extension"`
		MIMEType   string `json:"mime_type"`
		MultiFrame bool   `json:"multi_frame"`
		AnimMerge  bool   `json:"anim_merge"`
	}

	formats := catalog.Formats()
	rows := make([]formatRow, 0, len(formats))
	for _, format := range formats {
		d, ok := catalog.Lookup(format)
		if !ok {
			continue
		}
		rows = append(rows, formatRow{
			Key:        string(d.Key),
			Extension:  d.Extension,
			MIMEType:   d.MIMEType,
			MultiFrame: d.MultiFrame,
			AnimMerge:  d.AnimMerge,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"formats": rows})
}

// handleCreateRun accepts a multipart form with one or more "images" parts
// plus the shared edit fields, stores the accepted sources, and enqueues the
// conversion. Non-image parts are skipped, not fatal; the response carries a
// note naming them.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	uploads, err := readUploads(r.MultipartForm.File["images"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	accepted, rejected := domain.PartitionUploads(uploads)
	if len(accepted) == 0 {
		msg := "no image files in request"
		if note := domain.RejectionNote(rejected); note != "" {
			msg = note
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	job, err := jobFromForm(r, accepted)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := job.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	runID := id.New()
	sourceKeys := make([]string, 0, len(accepted))
	for i, upload := range accepted {
		key := storage.SourceKey(runID, i)
		if err := s.storage.WriteObject(r.Context(), key, upload.Data, upload.ContentType); err != nil {
			s.logger.Printf("store source failed run_id=%s key=%s err=%v", runID, key, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store uploads"})
			return
		}
		sourceKeys = append(sourceKeys, key)
	}

	now := time.Now().UTC()
	run := domain.Run{
		ID:         runID,
		Status:     domain.RunStatusCreated,
		Job:        job,
		SourceKeys: sourceKeys,
		WebhookURL: strings.TrimSpace(r.FormValue("webhook_url")),
		Rejected:   rejected,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.runStore.Create(r.Context(), run); err != nil {
		s.logger.Printf("create run failed run_id=%s err=%v", runID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create run"})
		return
	}

	taskInfo, err := s.queueClient.EnqueueConvertRun(r.Context(), queue.ConvertRunPayload{
		RunID:       runID,
		RequestedAt: now,
	})
	if err != nil {
		s.logger.Printf("enqueue failed run_id=%s err=%v", runID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue run"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.runStore.UpdateStatus(r.Context(), runID, domain.RunStatusQueued); err != nil {
		s.logger.Printf("update status failed run_id=%s err=%v", runID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":        runID,
		"status":        domain.RunStatusQueued,
		"accepted":      len(accepted),
		"rejected_note": domain.RejectionNote(rejected),
		"status_url":    fmt.Sprintf("/v1/runs/%s", runID),
		"result_url":    fmt.Sprintf("/v1/runs/%s/result", runID),
	})
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	runID, wantResult, err := parseRunPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	run, ok, err := s.runStore.Get(r.Context(), runID)
	if err != nil {
		s.logger.Printf("fetch run failed run_id=%s err=%v", runID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load run"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	if wantResult {
		s.serveResult(w, r, run)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        run.ID,
		"status":        run.Status,
		"progress":      run.Progress,
		"rejected_note": domain.RejectionNote(run.Rejected),
		"result_name":   run.ResultName,
		"error":         run.ErrMessage,
		"created_at":    run.CreatedAt,
		"updated_at":    run.UpdatedAt,
	})
}

func (s *Server) serveResult(w http.ResponseWriter, r *http.Request, run domain.Run) {
	if run.Status != domain.RunStatusSucceeded {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("run is %s, result is only available once it has succeeded", run.Status),
		})
		return
	}

	data, err := s.storage.ReadObject(r.Context(), run.ResultKey)
	if err != nil {
		s.logger.Printf("read result failed run_id=%s key=%s err=%v", run.ID, run.ResultKey, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load result"})
		return
	}

	w.Header().Set("Content-Type", run.ResultMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.ResultName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseRunPath splits /v1/runs/{id} and /v1/runs/{id}/result.
func parseRunPath(path string) (runID string, wantResult bool, err error) {
	trimmed := strings.TrimPrefix(path, "/v1/runs/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return parts[0], false, nil
	case len(parts) == 2 && parts[0] != "" && parts[1] == "result":
		return parts[0], true, nil
	default:
		return "", false, errors.New("expected path format /v1/runs/{id} or /v1/runs/{id}/result")
	}
}

func readUploads(files []*multipart.FileHeader) ([]domain.Upload, error) {
	if len(files) == 0 {
		return nil, errors.New("at least one file is required under the images field")
	}

	uploads := make([]domain.Upload, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", header.Filename, err)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", header.Filename, err)
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}

		uploads = append(uploads, domain.Upload{
			Name:        header.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}
	return uploads, nil
}

// jobFromForm builds the immutable job snapshot from the form fields. Every
// field has a usable default so a bare upload converts with no edits.
func jobFromForm(r *http.Request, accepted []domain.Upload) (domain.ConversionJob, error) {
	target, ok := catalog.Parse(r.FormValue("target_format"))
	if !ok {
		return domain.ConversionJob{}, fmt.Errorf("unsupported target format: %s", r.FormValue("target_format"))
	}

	mode := domain.ResizeMode(strings.ToLower(strings.TrimSpace(r.FormValue("resize_mode"))))
	if mode == "" {
		mode = domain.ResizeNone
	}

	quality, err := formInt(r, "quality", 85)
	if err != nil {
		return domain.ConversionJob{}, err
	}
	rotation, err := formInt(r, "rotation_degrees", 0)
	if err != nil {
		return domain.ConversionJob{}, err
	}
	percent, err := formInt(r, "resize_percent", 0)
	if err != nil {
		return domain.ConversionJob{}, err
	}
	width, err := formInt(r, "resize_width", 0)
	if err != nil {
		return domain.ConversionJob{}, err
	}
	height, err := formInt(r, "resize_height", 0)
	if err != nil {
		return domain.ConversionJob{}, err
	}
	frameDelay, err := formInt(r, "frame_delay_ms", 100)
	if err != nil {
		return domain.ConversionJob{}, err
	}

	items := make([]domain.ImageItem, 0, len(accepted))
	for _, upload := range accepted {
		items = append(items, domain.ImageItem{
			ID:   id.New(),
			Name: upload.Name,
			Data: upload.Data,
		})
	}

	return domain.ConversionJob{
		Items:        items,
		TargetFormat: target,
		Edits: domain.EditSpec{
			RotationDegrees: rotation,
			Resize: domain.Resize{
				Mode:      mode,
				Percent:   percent,
				Width:     width,
				Height:    height,
				LockRatio: formBool(r, "lock_ratio"),
			},
			Quality: quality,
		},
		MergeToAnimation: formBool(r, "merge"),
		FrameDelayMS:     frameDelay,
		BundleAsZip:      formBool(r, "zip"),
	}, nil
}

func formInt(r *http.Request, key string, fallback int) (int, error) {
	value := strings.TrimSpace(r.FormValue(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("field %s must be an integer, got %q", key, value)
	}
	return parsed, nil
}

func formBool(r *http.Request, key string) bool {
	value := strings.TrimSpace(r.FormValue(key))
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
