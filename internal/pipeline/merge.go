package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/framefold/framefold/internal/catalog"
	"github.com/framefold/framefold/internal/domain"
	"github.com/framefold/framefold/internal/engine"
)

// runMerge is the animation-merge pipeline: one frame per input, in input
// order, collected into a single multi-frame output. Input order defines
// playback order.
func (o *Orchestrator) runMerge(ctx context.Context, job domain.ConversionJob, reporter *reporter) (domain.RunResult, error) {
	// Codec delay units are centiseconds; rounding can shift perceived
	// timing by up to 5ms per frame.
	delayCS := int(math.Round(float64(job.FrameDelayMS) / 10))

	seq := &engine.Sequence{Frames: make([]*engine.Frame, 0, len(job.Items))}
	total := len(job.Items)
	stats := domain.RunStats{ItemsProcessed: total}

	for i, item := range job.Items {
		select {
		case <-ctx.Done():
			return domain.RunResult{}, ctx.Err()
		default:
		}

		frame, err := o.eng.DecodeFirst(ctx, item.Data)
		if err != nil {
			return domain.RunResult{}, fmt.Errorf("merge %s: %w", item.Name, err)
		}

		o.applyEdits(frame, job.Edits)

		// A ratio-locked fit may stop short of the exact target box while
		// multi-frame GIF encoding demands uniform frame sizes; pad the
		// canvas out to the box, content centered, background transparent.
		if padToTargetBox(job) {
			o.eng.Extent(frame, job.Edits.Resize.Width, job.Edits.Resize.Height)
		}

		frame.DelayCS = delayCS
		if job.TargetFormat == catalog.FormatGIF {
			frame.DisposalBackground = true
		}

		seq.Frames = append(seq.Frames, frame)
		stats.PixelsProcessed += int64(frame.Width()) * int64(frame.Height())
		reporter.FrameDone(i+1, total)
	}

	data, err := o.eng.Encode(ctx, seq, job.TargetFormat, job.Edits.Quality)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("encode merged animation: %w", err)
	}

	reporter.Finish()
	return domain.RunResult{
		Single: &domain.OutputFile{
			Name:     "merged_animation." + catalog.Extension(job.TargetFormat),
			Data:     data,
			MIMEType: catalog.MIMEType(job.TargetFormat),
		},
		Stats: stats,
	}, nil
}

// padToTargetBox holds only for the one combination known to need it:
// GIF target, pixel resize with both dimensions set, ratio locked.
func padToTargetBox(job domain.ConversionJob) bool {
	r := job.Edits.Resize
	return job.TargetFormat == catalog.FormatGIF &&
		r.Mode == domain.ResizePixels &&
		r.LockRatio &&
		r.Width > 0 && r.Height > 0
}
