// Package engine wraps the image-processing library behind a narrow
// interface: decode to self-contained frames, per-frame edits, and single-
// or multi-frame encode. The default engine is pure Go; building with the
// govips tag swaps in libvips-backed export for the formats the pure engine
// cannot write.
package engine

import (
	"context"
	"errors"
	"image"

	"github.com/framefold/framefold/internal/catalog"
)

var (
	// ErrCodecUnavailable marks an output format this build cannot encode.
	ErrCodecUnavailable = errors.New("output codec unavailable in this build")
	// ErrFrameSizeMismatch marks a multi-frame encode whose frames differ
	// in pixel dimensions.
	ErrFrameSizeMismatch = errors.New("frames differ in size for multi-frame output")
)

// Frame is one self-contained image frame. DelayCS is the display duration
// in centiseconds for animated output; DisposalBackground requests the
// restore-to-background disposal between frames.
type Frame struct {
	Image              *image.NRGBA
	DelayCS            int
	DisposalBackground bool
}

func (f *Frame) Width() int  { return f.Image.Bounds().Dx() }
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// Sequence is an ordered frame collection; a still image is a sequence of
// exactly one frame.
type Sequence struct {
	Frames []*Frame
}

type Engine interface {
	// Decode parses all frames and coalesces them so each is
	// self-contained with inter-frame deltas resolved.
	Decode(ctx context.Context, data []byte) (*Sequence, error)
	// DecodeFirst parses exactly one frame, ignoring any multi-frame
	// structure in the source.
	DecodeFirst(ctx context.Context, data []byte) (*Frame, error)

	Rotate(f *Frame, degrees int)
	ResizePercent(f *Frame, percent int)
	ResizeExact(f *Frame, width, height int)
	// Fit resizes into the width×height bounding box preserving aspect.
	Fit(f *Frame, width, height int)
	// Extent pads the frame canvas to width×height, content anchored at
	// center, added area fully transparent. Content is never scaled.
	Extent(f *Frame, width, height int)

	// Encode serializes the sequence in the target format. Multi-frame
	// formats receive every frame; GIF output runs a palette optimization
	// pass and requires uniform frame sizes.
	Encode(ctx context.Context, seq *Sequence, format catalog.Format, quality int) ([]byte, error)
}

// New returns the engine selected by build tags.
func New() (Engine, error) {
	return newEngine()
}
