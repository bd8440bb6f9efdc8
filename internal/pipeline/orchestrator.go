// Package pipeline drives a ConversionJob from decoded inputs to the final
// deliverable: either every input converted on its own (optionally bundled
// into a zip) or all inputs merged into one animation. The first failure
// aborts the whole run; nothing partial is ever returned.
package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/framefold/framefold/internal/archive"
	"github.com/framefold/framefold/internal/catalog"
	"github.com/framefold/framefold/internal/domain"
	"github.com/framefold/framefold/internal/engine"
)

type Orchestrator struct {
	eng    engine.Engine
	tracer trace.Tracer
}

func New(eng engine.Engine) *Orchestrator {
	return &Orchestrator{
		eng:    eng,
		tracer: otel.Tracer("framefold/pipeline"),
	}
}

// Run executes one immutable job snapshot. Progress is pushed to the sink as
// work completes and reset to the zero update once the run settles, success
// or failure.
func (o *Orchestrator) Run(ctx context.Context, job domain.ConversionJob, progress ProgressFunc) (domain.RunResult, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run")
	span.SetAttributes(
		attribute.Int("run.items", len(job.Items)),
		attribute.String("run.target_format", string(job.TargetFormat)),
		attribute.Bool("run.merge", job.MergePath()),
	)
	defer span.End()

	if err := job.Validate(); err != nil {
		return domain.RunResult{}, fmt.Errorf("validate job: %w", err)
	}

	reporter := newReporter(progress)
	defer reporter.Reset()

	if job.MergePath() {
		return o.runMerge(ctx, job, reporter)
	}
	return o.runPerFile(ctx, job, reporter)
}

// runPerFile converts every item independently, in order, then packages.
// A zip is produced when the caller asked for one or when more than one
// output exists; otherwise the single output is returned directly.
func (o *Orchestrator) runPerFile(ctx context.Context, job domain.ConversionJob, reporter *reporter) (domain.RunResult, error) {
	outputs := make([]archive.Entry, 0, len(job.Items))
	total := len(job.Items)
	stats := domain.RunStats{ItemsProcessed: total}

	for i, item := range job.Items {
		select {
		case <-ctx.Done():
			return domain.RunResult{}, ctx.Err()
		default:
		}

		data, pixels, err := o.convertOne(ctx, item.Data, job)
		if err != nil {
			return domain.RunResult{}, fmt.Errorf("convert %s: %w", item.Name, err)
		}
		stats.PixelsProcessed += pixels

		outputs = append(outputs, archive.Entry{
			Name: outputName(item.Name, job.TargetFormat),
			Data: data,
		})
		reporter.FileDone(i+1, total, item.Name)
	}

	if job.BundleAsZip || len(outputs) > 1 {
		zipData, err := archive.Build(outputs, reporter.Packaging)
		if err != nil {
			return domain.RunResult{}, fmt.Errorf("package archive: %w", err)
		}
		reporter.Finish()
		return domain.RunResult{
			Archive: &domain.OutputFile{
				Name:     domain.ArchiveName,
				Data:     zipData,
				MIMEType: "application/zip",
			},
			Stats: stats,
		}, nil
	}

	reporter.Finish()
	return domain.RunResult{
		Single: &domain.OutputFile{
			Name:     outputs[0].Name,
			Data:     outputs[0].Data,
			MIMEType: catalog.MIMEType(job.TargetFormat),
		},
		Stats: stats,
	}, nil
}

// outputName strips the source extension and appends the target's.
func outputName(sourceName string, format catalog.Format) string {
	base := sourceName
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' || base[i] == '\\' {
			break
		}
		if base[i] == '.' {
			base = base[:i]
			break
		}
	}
	if base == "" {
		base = sourceName
	}
	return base + "." + catalog.Extension(format)
}
