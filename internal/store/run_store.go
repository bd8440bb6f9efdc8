package store

import (
	"context"

	"github.com/framefold/framefold/internal/domain"
)

type RunStore interface {
	Create(ctx context.Context, run domain.Run) error
	Get(ctx context.Context, id string) (domain.Run, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Run, error)
	UpdateProgress(ctx context.Context, id string, progress domain.ProgressUpdate) error
	SetResult(ctx context.Context, id, resultKey, resultName, resultMIME string) error
	SetError(ctx context.Context, id, message string) error
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
