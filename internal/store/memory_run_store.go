package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/framefold/framefold/internal/domain"
)

var ErrRunNotFound = errors.New("run not found")

type MemoryRunStore struct {
	mu    sync.RWMutex
	runs  map[string]domain.Run
	usage []domain.UsageLog
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs: make(map[string]domain.Run),
	}
}

func (s *MemoryRunStore) Create(_ context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryRunStore) Get(_ context.Context, id string) (domain.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryRunStore) UpdateStatus(_ context.Context, id, status string) (domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return domain.Run{}, ErrRunNotFound
	}

	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	s.runs[id] = run
	return run, nil
}

func (s *MemoryRunStore) UpdateProgress(_ context.Context, id string, progress domain.ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}

	run.Progress = progress
	run.UpdatedAt = time.Now().UTC()
	s.runs[id] = run
	return nil
}

func (s *MemoryRunStore) SetResult(_ context.Context, id, resultKey, resultName, resultMIME string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}

	run.ResultKey = resultKey
	run.ResultName = resultName
	run.ResultMIME = resultMIME
	run.UpdatedAt = time.Now().UTC()
	s.runs[id] = run
	return nil
}

func (s *MemoryRunStore) SetError(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}

	run.ErrMessage = message
	run.UpdatedAt = time.Now().UTC()
	s.runs[id] = run
	return nil
}

func (s *MemoryRunStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

// UsageLogs returns a copy of everything recorded; used by tests.
func (s *MemoryRunStore) UsageLogs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UsageLog, len(s.usage))
	copy(out, s.usage)
	return out
}
