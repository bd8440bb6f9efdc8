package pipeline

import (
	"errors"

	"github.com/framefold/framefold/internal/engine"
)

// ErrEngineUnavailable marks a failed engine initialization. It is
// feature-wide: no run can proceed until the process is restarted.
var ErrEngineUnavailable = errors.New("image engine failed to initialize")

type Category string

const (
	CategoryEngineUnavailable Category = "engine_unavailable"
	CategoryUnsupportedCodec  Category = "unsupported_codec"
	CategoryFrameSizeMismatch Category = "frame_size_mismatch"
	CategoryUnknown           Category = "unknown"
)

// Classified is the single user-facing message chosen for a failed run.
type Classified struct {
	Category Category
	Message  string
}

// Classify maps a raised failure onto the small user-facing taxonomy.
// Anything unrecognized surfaces its raw message verbatim.
func Classify(err error) Classified {
	switch {
	case errors.Is(err, ErrEngineUnavailable):
		return Classified{
			Category: CategoryEngineUnavailable,
			Message:  "The image engine failed to initialize. No conversions can run until the service is restarted.",
		}
	case errors.Is(err, engine.ErrCodecUnavailable):
		return Classified{
			Category: CategoryUnsupportedCodec,
			Message:  "This build cannot write the selected output format. Pick a supported multi-frame format such as GIF or WebP.",
		}
	case errors.Is(err, engine.ErrFrameSizeMismatch):
		return Classified{
			Category: CategoryFrameSizeMismatch,
			Message:  "Frames ended up with different sizes during encoding. Check the resize width and height when the aspect ratio is locked.",
		}
	default:
		return Classified{
			Category: CategoryUnknown,
			Message:  err.Error(),
		}
	}
}
