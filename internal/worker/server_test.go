package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/framefold/framefold/internal/catalog"
	"github.com/framefold/framefold/internal/domain"
	"github.com/framefold/framefold/internal/engine"
	"github.com/framefold/framefold/internal/pipeline"
	"github.com/framefold/framefold/internal/queue"
	"github.com/framefold/framefold/internal/store"
	"github.com/framefold/framefold/internal/webhook"
)

func TestHandleConvertRunSuccess(t *testing.T) {
	runStore := store.NewMemoryRunStore()
	objects := newFakeObjectStore()
	hooks := &captureWebhook{}

	seedRun(t, runStore, objects, "run-1", "https://example.test/hook")

	conv := &fakeConverter{
		result: domain.RunResult{
			Single: &domain.OutputFile{
				Name:     "photo.jpg",
				Data:     []byte("jpeg-bytes"),
				MIMEType: "image/jpeg",
			},
			Stats: domain.RunStats{ItemsProcessed: 1, PixelsProcessed: 64 * 48},
		},
	}
	s := newTestServer(runStore, objects, hooks, conv)

	task, err := queue.NewConvertRunTask(queue.ConvertRunPayload{RunID: "run-1", RequestedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := s.handleConvertRun(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	run, ok, err := runStore.Get(context.Background(), "run-1")
	if err != nil || !ok {
		t.Fatalf("load run: ok=%v err=%v", ok, err)
	}
	if run.Status != domain.RunStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", run.Status)
	}
	if run.ResultName != "photo.jpg" || run.ResultMIME != "image/jpeg" {
		t.Fatalf("unexpected result fields: %+v", run)
	}
	if _, ok := objects.get(run.ResultKey); !ok {
		t.Fatalf("expected result object at %s", run.ResultKey)
	}
	if _, ok := objects.get("uploads/run-1/0"); ok {
		t.Fatal("expected source object to be cleaned up")
	}
	if run.Progress != (domain.ProgressUpdate{}) {
		t.Fatalf("expected progress reset to zero, got %+v", run.Progress)
	}

	if hooks.event != webhook.EventRunCompleted {
		t.Fatalf("expected completion webhook, got %q", hooks.event)
	}
	if hooks.body.ResultName != "photo.jpg" {
		t.Fatalf("unexpected webhook body: %+v", hooks.body)
	}

	logs := runStore.UsageLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 usage log, got %d", len(logs))
	}
	if logs[0].PixelsProcessed != 64*48 || logs[0].OutputBytes != int64(len("jpeg-bytes")) {
		t.Fatalf("unexpected usage log: %+v", logs[0])
	}
	if logs[0].ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms at least 1, got %d", logs[0].ComputeTimeMS)
	}
}

func TestHandleConvertRunPersistsProgress(t *testing.T) {
	runStore := store.NewMemoryRunStore()
	objects := newFakeObjectStore()

	seedRun(t, runStore, objects, "run-2", "")

	conv := &fakeConverter{
		result: domain.RunResult{
			Single: &domain.OutputFile{Name: "photo.jpg", Data: []byte("x"), MIMEType: "image/jpeg"},
		},
		progress: []domain.ProgressUpdate{
			{Label: "Converted photo.png (1/1)", Percent: 90},
			{Label: "Done", Percent: 100},
		},
	}
	s := newTestServer(runStore, objects, nil, conv)

	task, err := queue.NewConvertRunTask(queue.ConvertRunPayload{RunID: "run-2"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := s.handleConvertRun(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(conv.seen) != 1 {
		t.Fatalf("expected converter to run once, ran %d times", len(conv.seen))
	}
	run, _, err := runStore.Get(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Progress.Percent != 100 {
		t.Fatalf("expected last pushed progress persisted, got %+v", run.Progress)
	}
}

func TestHandleConvertRunFailureClassifies(t *testing.T) {
	runStore := store.NewMemoryRunStore()
	objects := newFakeObjectStore()
	hooks := &captureWebhook{}

	seedRun(t, runStore, objects, "run-3", "https://example.test/hook")

	conv := &fakeConverter{
		err: fmt.Errorf("convert photo.png: %w", engine.ErrCodecUnavailable),
	}
	s := newTestServer(runStore, objects, hooks, conv)

	task, err := queue.NewConvertRunTask(queue.ConvertRunPayload{RunID: "run-3"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := s.handleConvertRun(context.Background(), task); err == nil {
		t.Fatal("expected handler to return the failure")
	}

	run, _, err := runStore.Get(context.Background(), "run-3")
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed, got %s", run.Status)
	}
	if !strings.Contains(run.ErrMessage, "GIF or WebP") {
		t.Fatalf("expected codec hint in message, got %q", run.ErrMessage)
	}
	if hooks.event != webhook.EventRunFailed {
		t.Fatalf("expected failure webhook, got %q", hooks.event)
	}
	if _, ok := objects.get("uploads/run-3/0"); !ok {
		t.Fatal("expected source object kept on failure")
	}
}

func TestHandleConvertRunWithoutEngineFailsFast(t *testing.T) {
	runStore := store.NewMemoryRunStore()
	objects := newFakeObjectStore()

	seedRun(t, runStore, objects, "run-4", "")

	s := newTestServer(runStore, objects, nil, nil)
	s.engineErr = fmt.Errorf("%w: libvips missing", pipeline.ErrEngineUnavailable)

	task, err := queue.NewConvertRunTask(queue.ConvertRunPayload{RunID: "run-4"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := s.handleConvertRun(context.Background(), task); err == nil {
		t.Fatal("expected handler to fail")
	}

	run, _, err := runStore.Get(context.Background(), "run-4")
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed, got %s", run.Status)
	}
	if !strings.Contains(run.ErrMessage, "restarted") {
		t.Fatalf("expected engine-unavailable message, got %q", run.ErrMessage)
	}
}

func newTestServer(runStore *store.MemoryRunStore, objects *fakeObjectStore, hooks *captureWebhook, conv *fakeConverter) *Server {
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		sem:        make(chan struct{}, 1),
		storage:    objects,
		runStore:   runStore,
		usageStore: runStore,
		metrics:    newMetrics(),
		tracer:     noop.NewTracerProvider().Tracer("test"),
	}
	if conv != nil {
		s.converter = conv
	}
	if hooks != nil {
		s.webhookClient = hooks
	}
	return s
}

func seedRun(t *testing.T, runStore *store.MemoryRunStore, objects *fakeObjectStore, runID, webhookURL string) {
	t.Helper()

	key := "uploads/" + runID + "/0"
	if err := objects.WriteObject(context.Background(), key, []byte("png-bytes"), "image/png"); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	now := time.Now().UTC()
	if err := runStore.Create(context.Background(), domain.Run{
		ID:     runID,
		Status: domain.RunStatusQueued,
		Job: domain.ConversionJob{
			Items:        []domain.ImageItem{{ID: "item-1", Name: "photo.png"}},
			TargetFormat: catalog.FormatJPEG,
			Edits:        domain.EditSpec{Quality: 85, Resize: domain.Resize{Mode: domain.ResizeNone}},
		},
		SourceKeys: []string{key},
		WebhookURL: webhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}
}

type fakeConverter struct {
	result   domain.RunResult
	err      error
	progress []domain.ProgressUpdate
	seen     []domain.ConversionJob
}

func (f *fakeConverter) Run(_ context.Context, job domain.ConversionJob, progress pipeline.ProgressFunc) (domain.RunResult, error) {
	f.seen = append(f.seen, job)
	if progress != nil {
		for _, update := range f.progress {
			progress(update)
		}
	}
	if f.err != nil {
		return domain.RunResult{}, f.err
	}
	return f.result, nil
}

type captureWebhook struct {
	event string
	body  webhook.RunEvent
}

func (c *captureWebhook) Send(_ context.Context, _ string, event string, payload any) error {
	c.event = event
	if body, ok := payload.(webhook.RunEvent); ok {
		c.body = body
	}
	return nil
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) ReadObject(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object at %s", key)
	}
	return data, nil
}

func (f *fakeObjectStore) WriteObject(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeObjectStore) RemoveObjects(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.objects, key)
	}
	return nil
}

func (f *fakeObjectStore) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}
