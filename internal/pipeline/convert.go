package pipeline

import (
	"context"

	"github.com/framefold/framefold/internal/catalog"
	"github.com/framefold/framefold/internal/domain"
	"github.com/framefold/framefold/internal/engine"
)

// convertOne is the per-file pipeline: decode to coalesced frames, apply the
// shared edits to every frame identically, and encode. Multi-frame targets
// receive the whole sequence; single-frame targets keep only the first frame
// and the rest are discarded. The second return is the pixel count of the
// encoded frames, for usage accounting.
func (o *Orchestrator) convertOne(ctx context.Context, data []byte, job domain.ConversionJob) ([]byte, int64, error) {
	seq, err := o.eng.Decode(ctx, data)
	if err != nil {
		return nil, 0, err
	}

	for _, frame := range seq.Frames {
		o.applyEdits(frame, job.Edits)
	}

	if !catalog.IsMultiFrame(job.TargetFormat) {
		seq = &engine.Sequence{Frames: seq.Frames[:1]}
	}

	var pixels int64
	for _, frame := range seq.Frames {
		pixels += int64(frame.Width()) * int64(frame.Height())
	}

	encoded, err := o.eng.Encode(ctx, seq, job.TargetFormat, job.Edits.Quality)
	if err != nil {
		return nil, 0, err
	}
	return encoded, pixels, nil
}

// applyEdits applies the shared edit spec to one frame in fixed order:
// rotate, then resize. Quality and target format are set only at encode
// time, never here.
func (o *Orchestrator) applyEdits(f *engine.Frame, spec domain.EditSpec) {
	if spec.RotationDegrees != 0 {
		o.eng.Rotate(f, spec.RotationDegrees)
	}

	switch spec.Resize.Mode {
	case domain.ResizePercent:
		o.eng.ResizePercent(f, spec.Resize.Percent)
	case domain.ResizePixels:
		w, h := spec.Resize.Width, spec.Resize.Height
		if w == 0 && h == 0 {
			return
		}
		// An unset dimension defaults to the source's, so a single
		// provided dimension drives the result.
		if w == 0 {
			w = f.Width()
		}
		if h == 0 {
			h = f.Height()
		}
		if spec.Resize.LockRatio {
			o.eng.Fit(f, w, h)
		} else {
			o.eng.ResizeExact(f, w, h)
		}
	}
}
